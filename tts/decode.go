package tts

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// DecodePayload decodes a base64 synthesis payload into playable audio.
func DecodePayload(payload, mimeType string) (*Audio, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecodeFailed, err)
	}
	return DecodeAudio(data, mimeType)
}

// DecodeAudio sniffs the container format of data and validates it.
// The bytes decide the format. mimeType is kept for players that want a
// hint.
func DecodeAudio(data []byte, mimeType string) (*Audio, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	audio := &Audio{Data: data, MIMEType: mimeType}

	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		if err := parseWAV(audio); err != nil {
			return nil, err
		}
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		audio.Format = FormatOgg
		if audio.MIMEType == "" {
			audio.MIMEType = "audio/ogg"
		}
	default:
		if err := parseMP3(audio); err != nil {
			return nil, err
		}
	}
	return audio, nil
}

func parseWAV(audio *Audio) error {
	data := audio.Data
	pos := 12
	var (
		haveFmt       bool
		bitsPerSample int
	)

	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			// Streaming writers leave the size unset; take what is there.
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return fmt.Errorf("%w: short fmt chunk", ErrDecodeFailed)
			}
			format := binary.LittleEndian.Uint16(data[body:])
			if format != 1 && format != 0xFFFE {
				return fmt.Errorf("%w: wav encoding %d", ErrUnsupportedFormat, format)
			}
			audio.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			audio.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return fmt.Errorf("%w: data chunk before fmt", ErrDecodeFailed)
			}
			audio.PCM = data[body : body+size]
		}

		pos = body + size + size%2
	}

	switch {
	case !haveFmt:
		return fmt.Errorf("%w: missing fmt chunk", ErrDecodeFailed)
	case audio.PCM == nil:
		return fmt.Errorf("%w: missing data chunk", ErrDecodeFailed)
	case bitsPerSample != 16:
		return fmt.Errorf("%w: %d-bit wav", ErrUnsupportedFormat, bitsPerSample)
	case audio.Channels < 1 || audio.Channels > 2 || audio.SampleRate <= 0:
		return fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidAudioFormat, audio.Channels, audio.SampleRate)
	}

	audio.Format = FormatWAV
	if audio.MIMEType == "" {
		audio.MIMEType = "audio/wav"
	}
	bytesPerSecond := audio.SampleRate * audio.Channels * 2
	audio.Duration = time.Duration(len(audio.PCM)) * time.Second / time.Duration(bytesPerSecond)
	return nil
}

var (
	mp3BitratesV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	mp3BitratesV2L3 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
	mp3SampleRates  = map[int][3]int{
		3: {44100, 48000, 32000}, // MPEG 1
		2: {22050, 24000, 16000}, // MPEG 2
		0: {11025, 12000, 8000},  // MPEG 2.5
	}
)

// maxSyncScan bounds how far past the ID3 tag a frame sync is searched for.
const maxSyncScan = 4096

func parseMP3(audio *Audio) error {
	data := audio.Data
	start := 0
	if len(data) >= 10 && bytes.HasPrefix(data, []byte("ID3")) {
		size := int(data[6]&0x7f)<<21 | int(data[7]&0x7f)<<14 | int(data[8]&0x7f)<<7 | int(data[9]&0x7f)
		start = 10 + size
		if data[5]&0x10 != 0 {
			start += 10
		}
		if start > len(data) {
			return fmt.Errorf("%w: truncated ID3 tag", ErrDecodeFailed)
		}
	}

	frame := -1
	for i := start; i+4 <= len(data) && i-start < maxSyncScan; i++ {
		if data[i] == 0xFF && data[i+1]&0xE0 == 0xE0 {
			frame = i
			break
		}
	}
	if frame < 0 {
		if start > 0 {
			return fmt.Errorf("%w: no MPEG frame after ID3 tag", ErrDecodeFailed)
		}
		return fmt.Errorf("%w: unrecognised payload", ErrUnsupportedFormat)
	}

	b1, b2, b3 := data[frame+1], data[frame+2], data[frame+3]
	version := int(b1>>3) & 3
	layer := int(b1>>1) & 3
	if version == 1 || layer == 0 {
		return fmt.Errorf("%w: reserved MPEG header", ErrDecodeFailed)
	}

	audio.Format = FormatMP3
	if audio.MIMEType == "" {
		audio.MIMEType = "audio/mpeg"
	}
	audio.Channels = 2
	if b3>>6 == 3 {
		audio.Channels = 1
	}
	if idx := int(b2>>2) & 3; idx < 3 {
		audio.SampleRate = mp3SampleRates[version][idx]
	}

	// Duration is only estimated for Layer III, assuming constant bitrate.
	if layer == 1 {
		table := mp3BitratesV2L3
		if version == 3 {
			table = mp3BitratesV1L3
		}
		if kbps := table[b2>>4]; kbps > 0 {
			payload := len(data) - frame
			audio.Duration = time.Duration(payload) * 8 * time.Second / time.Duration(kbps*1000)
		}
	}
	return nil
}
