package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"voicekit/core"
)

// buildPCM produces n frames of interleaved 16-bit samples with a simple
// ramp so conversions are easy to verify.
func buildPCM(frames, channels int) []byte {
	pcm := make([]byte, frames*channels*2)
	for f := 0; f < frames; f++ {
		for ch := 0; ch < channels; ch++ {
			binary.LittleEndian.PutUint16(pcm[(f*channels+ch)*2:], uint16(int16(f*10+ch)))
		}
	}
	return pcm
}

func buildChunk(data []byte, rate, channels int) core.AudioChunk {
	return core.AudioChunk{Data: &data, SampleRate: rate, Channels: channels, Format: core.ULAW}
}

func TestULawRoundTrip(t *testing.T) {
	pcm := buildPCM(64, 1)
	encoded, err := PCMBytesToULaw(pcm)
	if err != nil {
		t.Fatalf("PCMBytesToULaw: %v", err)
	}
	if len(encoded) != len(pcm)/2 {
		t.Fatalf("µ-law length %d, want %d", len(encoded), len(pcm)/2)
	}
	decoded := ULawBytesToPCM(encoded)
	if len(decoded) != len(pcm) {
		t.Fatalf("decoded length %d, want %d", len(decoded), len(pcm))
	}
}

func TestPCMBytesToULawRejectsOddLength(t *testing.T) {
	if _, err := PCMBytesToULaw([]byte{1, 2, 3}); err == nil {
		t.Error("odd-length PCM should be rejected")
	}
}

func TestALawRoundTrip(t *testing.T) {
	pcm := buildPCM(64, 1)
	encoded, err := PCMBytesToALaw(pcm)
	if err != nil {
		t.Fatalf("PCMBytesToALaw: %v", err)
	}
	decoded := ALawBytesToPCM(encoded)
	if len(decoded) != len(pcm) {
		t.Fatalf("decoded length %d, want %d", len(decoded), len(pcm))
	}
}

func TestWavWrapAndStrip(t *testing.T) {
	pcm := buildPCM(160, 1)
	wav, err := PCMBytesToWavBytes(pcm, 1, 16000)
	if err != nil {
		t.Fatalf("PCMBytesToWavBytes: %v", err)
	}
	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Error("WAV output missing RIFF magic")
	}
	if len(wav) != 44+len(pcm) {
		t.Errorf("WAV length %d, want %d", len(wav), 44+len(pcm))
	}

	stripped, err := StripWAVHeaderIfPresent(wav)
	if err != nil {
		t.Fatalf("StripWAVHeaderIfPresent: %v", err)
	}
	if !bytes.Equal(stripped, pcm) {
		t.Error("stripped PCM does not match the original payload")
	}
}

func TestStripWAVHeaderPassesThroughNonWav(t *testing.T) {
	raw := []byte{0xFF, 0xFB, 0x90, 0x00, 1, 2, 3}
	out, err := StripWAVHeaderIfPresent(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Error("non-WAV payload should pass through unchanged")
	}
}

func TestPCMDuration(t *testing.T) {
	pcm := buildPCM(16000, 1) // one second at 16kHz mono
	d, err := GetPCMDurationSeconds(pcm, 1, 16000)
	if err != nil {
		t.Fatalf("GetPCMDurationSeconds: %v", err)
	}
	if math.Abs(d-1.0) > 1e-9 {
		t.Errorf("duration %f, want 1.0", d)
	}
}

func TestResampleDoublesFrameCount(t *testing.T) {
	pcm := buildPCM(800, 1) // 100ms at 8kHz
	out, err := ResamplePCMBytes(pcm, 1, 8000, 16000)
	if err != nil {
		t.Fatalf("ResamplePCMBytes: %v", err)
	}
	if len(out) != len(pcm)*2 {
		t.Errorf("resampled length %d, want %d", len(out), len(pcm)*2)
	}
}

func TestResampleSameRateIsPassThrough(t *testing.T) {
	pcm := buildPCM(100, 2)
	out, err := ResamplePCMBytes(pcm, 2, 16000, 16000)
	if err != nil {
		t.Fatalf("ResamplePCMBytes: %v", err)
	}
	if !bytes.Equal(out, pcm) {
		t.Error("same-rate resample should return input unchanged")
	}
}

func TestChannelConversionRoundTrip(t *testing.T) {
	mono := buildPCM(50, 1)
	stereo := monoToStereo(mono)
	if len(stereo) != len(mono)*2 {
		t.Fatalf("stereo length %d, want %d", len(stereo), len(mono)*2)
	}
	back := stereoToMono(stereo)
	if !bytes.Equal(back, mono) {
		t.Error("mono -> stereo -> mono should be lossless for duplicated channels")
	}
}

func TestConvertAudioChunkULawToPCM16k(t *testing.T) {
	ulaw := make([]byte, 800) // 100ms at 8kHz µ-law
	for i := range ulaw {
		ulaw[i] = byte(i % 250)
	}
	in := buildChunk(ulaw, 8000, 1)

	out, err := ConvertAudioChunk(in, core.PCM, 1, 16000)
	if err != nil {
		t.Fatalf("ConvertAudioChunk: %v", err)
	}
	if out.SampleRate != 16000 || out.Channels != 1 {
		t.Errorf("converted chunk %d Hz %d ch, want 16000 Hz 1 ch", out.SampleRate, out.Channels)
	}
	// 800 µ-law samples = 800 PCM frames at 8k = 1600 frames at 16k = 3200 bytes.
	if got := len(*out.Data); got != 3200 {
		t.Errorf("converted payload %d bytes, want 3200", got)
	}
}

func TestSniffFormat(t *testing.T) {
	wav, _ := PCMBytesToWavBytes(buildPCM(10, 1), 1, 8000)
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"wav", wav, "wav"},
		{"mp3 id3", append([]byte("ID3"), make([]byte, 16)...), "mp3"},
		{"mp3 sync", []byte{0xFF, 0xFB, 0x90, 0x00}, "mp3"},
		{"flac", append([]byte("fLaC"), make([]byte, 8)...), "flac"},
		{"ogg", append([]byte("OggS"), make([]byte, 8)...), "ogg"},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x00, 0x00}, "webm"},
		{"m4a", append([]byte{0, 0, 0, 24}, append([]byte("ftypM4A "), make([]byte, 8)...)...), "m4a"},
		{"unknown", []byte{1, 2, 3, 4, 5}, ""},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SniffFormat(tt.data); got != tt.want {
				t.Errorf("SniffFormat = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectFormatExtensionFallback(t *testing.T) {
	if got := DetectFormat([]byte{1, 2, 3, 4}, "clip.OGG"); got != "ogg" {
		t.Errorf("extension fallback = %q, want ogg", got)
	}
	wav, _ := PCMBytesToWavBytes(buildPCM(10, 1), 1, 8000)
	if got := DetectFormat(wav, "misnamed.mp3"); got != "wav" {
		t.Errorf("magic bytes should win over extension, got %q", got)
	}
}

func TestValidateSize(t *testing.T) {
	if err := ValidateSize(nil, 100); err == nil {
		t.Error("empty payload should be rejected")
	}
	if err := ValidateSize(make([]byte, 101), 100); err == nil {
		t.Error("oversized payload should be rejected")
	}
	if err := ValidateSize(make([]byte, 100), 100); err != nil {
		t.Errorf("payload at the limit should pass: %v", err)
	}
}

func TestEstimateMP3Duration(t *testing.T) {
	// MPEG2 layer III, 48 kbit/s, the shape synthesized speech arrives in.
	// Header: 0xFF 0xF3 (MPEG2, layer III) 0x60 (bitrate index 6 = 48kbps).
	header := []byte{0xFF, 0xF3, 0x60, 0x00}
	payload := append(header, make([]byte, 6000-len(header))...) // 6000 bytes at 48kbps = 1s

	d, err := EstimateMP3Duration(payload)
	if err != nil {
		t.Fatalf("EstimateMP3Duration: %v", err)
	}
	if d < 900*time.Millisecond || d > 1100*time.Millisecond {
		t.Errorf("estimated %v, want about 1s", d)
	}
}

func TestEstimateMP3DurationRejectsGarbage(t *testing.T) {
	if _, err := EstimateMP3Duration([]byte("definitely not audio data")); err == nil {
		t.Error("garbage input should not produce a duration")
	}
}
