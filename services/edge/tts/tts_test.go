package edge

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestConvertSpeedToRate(t *testing.T) {
	tests := []struct {
		name  string
		speed float64
		want  string
	}{
		{"normal", 1.0, "+0%"},
		{"faster", 1.25, "+25%"},
		{"half_again", 1.5, "+50%"},
		{"double", 2.0, "+100%"},
		{"slower", 0.75, "-25%"},
		{"half", 0.5, "-50%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertSpeedToRate(tt.speed)
			if got != tt.want {
				t.Errorf("ConvertSpeedToRate(%v) = %q, want %q", tt.speed, got, tt.want)
			}
		})
	}
}

func TestMapVoiceName(t *testing.T) {
	tests := []struct {
		name  string
		voice string
		want  string
	}{
		{"playai_alias", "Fritz-PlayAI", "en-US-GuyNeural"},
		{"google_alias", "en-US-Standard-C", "en-US-AriaNeural"},
		{"simple_alias", "female", "en-US-JennyNeural"},
		{"edge_name_passthrough", "en-US-RogerNeural", "en-US-RogerNeural"},
		{"unknown_passthrough", "xx-XX-NobodyNeural", "xx-XX-NobodyNeural"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapVoiceName(tt.voice)
			if got != tt.want {
				t.Errorf("MapVoiceName(%q) = %q, want %q", tt.voice, got, tt.want)
			}
		})
	}
}

func TestIsKnownVoice(t *testing.T) {
	if !IsKnownVoice("en-US-JennyNeural") {
		t.Error("expected en-US-JennyNeural to be a known voice")
	}
	if IsKnownVoice("Fritz-PlayAI") {
		t.Error("aliases should not count as known voices before mapping")
	}
	if IsKnownVoice("") {
		t.Error("empty string should not be a known voice")
	}
}

func TestAvailableVoices(t *testing.T) {
	all := AvailableVoices("all")
	if len(all) != 14 {
		t.Errorf("expected 14 voices in full list, got %d", len(all))
	}

	professional := AvailableVoices("professional")
	if len(professional) != 3 {
		t.Errorf("expected 3 professional voices, got %d", len(professional))
	}
	for _, v := range professional {
		if !IsKnownVoice(v) {
			t.Errorf("category voice %q missing from full list", v)
		}
	}

	if got := AvailableVoices("nonexistent"); len(got) != 0 {
		t.Errorf("expected empty list for unknown category, got %v", got)
	}
}

func TestResolveVoice(t *testing.T) {
	service := NewEdgeTTS(EdgeTTSConfig{}, nil)

	tests := []struct {
		name  string
		voice string
		want  string
	}{
		{"empty_uses_default", "", DefaultVoice},
		{"alias_resolved", "male", "en-US-GuyNeural"},
		{"known_kept", "en-US-AriaNeural", "en-US-AriaNeural"},
		{"unknown_falls_back", "de-DE-KatjaNeural", DefaultVoice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.ResolveVoice(tt.voice)
			if got != tt.want {
				t.Errorf("ResolveVoice(%q) = %q, want %q", tt.voice, got, tt.want)
			}
		})
	}
}

func TestBuildSSMLEscapesText(t *testing.T) {
	ssml := buildSSML("en-US-GuyNeural", "+20%", "Tom & Jerry <3")

	if !strings.Contains(ssml, "Tom &amp; Jerry &lt;3") {
		t.Errorf("text not escaped in ssml: %s", ssml)
	}
	if !strings.Contains(ssml, "name='en-US-GuyNeural'") {
		t.Errorf("voice missing from ssml: %s", ssml)
	}
	if !strings.Contains(ssml, "rate='+20%'") {
		t.Errorf("rate missing from ssml: %s", ssml)
	}
}

func TestParseBinaryFrame(t *testing.T) {
	headers := "X-RequestId:abc\r\nPath:audio\r\n"
	frame := append([]byte{0x00, byte(len(headers))}, headers...)
	frame = append(frame, 0x01, 0x02, 0x03)

	gotHeaders, payload, err := parseBinaryFrame(frame)
	if err != nil {
		t.Fatalf("parseBinaryFrame failed: %v", err)
	}
	if gotHeaders != headers {
		t.Errorf("headers = %q, want %q", gotHeaders, headers)
	}
	if len(payload) != 3 || payload[0] != 0x01 || payload[2] != 0x03 {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestParseBinaryFrameMalformed(t *testing.T) {
	if _, _, err := parseBinaryFrame([]byte{0x00}); err == nil {
		t.Error("expected error for frame shorter than length prefix")
	}
	if _, _, err := parseBinaryFrame([]byte{0x00, 0xFF, 'a'}); err == nil {
		t.Error("expected error when header length exceeds frame size")
	}
}

func TestFramePath(t *testing.T) {
	headers := "X-RequestId:abc\r\nContent-Type:audio/mpeg\r\nPath:audio\r\n"
	if got := framePath(headers); got != "audio" {
		t.Errorf("framePath = %q, want %q", got, "audio")
	}
	if got := framePath("Content-Type:application/json"); got != "" {
		t.Errorf("expected empty path when header absent, got %q", got)
	}
}

func TestHeaderSection(t *testing.T) {
	message := []byte("Path:turn.end\r\nX-RequestId:abc\r\n\r\n{}")
	want := "Path:turn.end\r\nX-RequestId:abc"
	if got := headerSection(message); got != want {
		t.Errorf("headerSection = %q, want %q", got, want)
	}
}

func TestSecMSGECTokenShape(t *testing.T) {
	base := time.Unix(1700000000, 0)
	token := secMSGEC(base)

	if len(token) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(token))
	}
	for _, r := range token {
		if !strings.ContainsRune("0123456789ABCDEF", r) {
			t.Fatalf("token contains non-uppercase-hex rune %q", r)
		}
	}

	// Tokens are stable within a five minute window and rotate across it.
	if secMSGEC(base.Add(time.Second)) != token {
		t.Error("token changed within the same clock window")
	}
	if secMSGEC(base.Add(5*time.Minute)) == token {
		t.Error("token did not rotate across clock windows")
	}
}

func TestSynthesizeValidation(t *testing.T) {
	service := NewEdgeTTS(EdgeTTSConfig{MaxInputLength: 16}, nil)

	if _, err := service.Synthesize(context.Background(), "hello", "", 1.0); err == nil {
		t.Error("expected error before Initialize")
	}

	if err := service.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer service.Cleanup()

	if _, err := service.Synthesize(context.Background(), "   ", "", 1.0); err == nil {
		t.Error("expected error for blank text")
	}
	if _, err := service.Synthesize(context.Background(), strings.Repeat("a", 17), "", 1.0); err == nil {
		t.Error("expected error for text over the input cap")
	}
}
