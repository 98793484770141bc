package tts_test

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
)

// mp3Clip returns n bytes starting with an MPEG-1 Layer III frame header
// (128 kbps, 44.1 kHz, stereo).
func mp3Clip(n int) []byte {
	b := make([]byte, n)
	copy(b, []byte{0xFF, 0xFB, 0x90, 0x64})
	return b
}

// wavClip returns a RIFF/WAVE file holding samples frames of silence.
func wavClip(sampleRate, channels, bits, samples int) []byte {
	dataLen := samples * channels * bits / 8
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*bits/8))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels*bits/8))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bits))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}

func b64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
