package audio

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// SniffFormat identifies a compressed audio container by its magic bytes.
// Returns the short format name ("wav", "mp3", "m4a", "flac", "ogg", "webm")
// or "" when the payload is not recognized.
func SniffFormat(data []byte) string {
	switch {
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return "wav"
	case len(data) >= 4 && bytes.HasPrefix(data, []byte("fLaC")):
		return "flac"
	case len(data) >= 4 && bytes.HasPrefix(data, []byte("OggS")):
		return "ogg"
	case len(data) >= 4 && data[0] == 0x1A && data[1] == 0x45 && data[2] == 0xDF && data[3] == 0xA3:
		// EBML header, used by both webm and mkv; browsers record webm.
		return "webm"
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return "m4a"
	case len(data) >= 3 && bytes.HasPrefix(data, []byte("ID3")):
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

// DetectFormat sniffs the payload first and falls back to the filename
// extension when the magic bytes are unknown.
func DetectFormat(data []byte, filename string) string {
	if format := SniffFormat(data); format != "" {
		return format
	}
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// ValidateSize rejects empty payloads and payloads over maxBytes.
func ValidateSize(data []byte, maxBytes int) error {
	if len(data) == 0 {
		return errors.New("audio payload is empty")
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return fmt.Errorf("audio payload is %d bytes, limit is %d", len(data), maxBytes)
	}
	return nil
}

// Bitrate tables for MPEG layer III, kbit/s, indexed by the frame header's
// bitrate field.
var (
	mpeg1Layer3Bitrates = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320}
	mpeg2Layer3Bitrates = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160}
)

// EstimateMP3Duration estimates playback length from the first frame header's
// bitrate, assuming constant bitrate. Synthesized speech is CBR, so this is
// accurate enough for UI duration hints.
func EstimateMP3Duration(data []byte) (time.Duration, error) {
	offset := 0
	if len(data) >= 10 && bytes.HasPrefix(data, []byte("ID3")) {
		// Skip the ID3v2 tag: its size is a 28-bit synchsafe integer.
		tagSize := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
		offset = 10 + tagSize
	}

	for offset+4 <= len(data) {
		if data[offset] == 0xFF && data[offset+1]&0xE0 == 0xE0 {
			break
		}
		offset++
	}
	if offset+4 > len(data) {
		return 0, errors.New("no MP3 frame sync found")
	}

	versionBits := (data[offset+1] >> 3) & 0x03 // 11 = MPEG1, 10 = MPEG2, 00 = MPEG2.5
	layerBits := (data[offset+1] >> 1) & 0x03   // 01 = layer III
	bitrateIdx := (data[offset+2] >> 4) & 0x0F

	if layerBits != 0x01 {
		return 0, errors.New("not an MPEG layer III stream")
	}
	if bitrateIdx == 0 || bitrateIdx == 0x0F {
		return 0, errors.New("free-format or invalid bitrate")
	}

	var kbps int
	if versionBits == 0x03 {
		kbps = mpeg1Layer3Bitrates[bitrateIdx]
	} else {
		kbps = mpeg2Layer3Bitrates[bitrateIdx]
	}

	seconds := float64(len(data)-offset) * 8 / float64(kbps*1000)
	return time.Duration(seconds * float64(time.Second)), nil
}
