// Package audio provides tts.AudioPlayer implementations: an oto player for
// PCM clips, an external command player for compressed formats, a router
// that picks between them and a mock for tests.
package audio
