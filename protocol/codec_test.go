package protocol

import (
	"strings"
	"testing"
	"time"
)

func TestEncodeProducesFlatJSON(t *testing.T) {
	msg := TextMessage{
		Header:  Header{Type: MsgTextMessage, Timestamp: "2026-08-21T10:00:00Z"},
		Message: "hello there",
		VoiceSettings: &VoiceSettings{
			AutoTTS: true,
			Voice:   "en-US-GuyNeural",
			Speed:   1.25,
		},
	}

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got := string(data)
	for _, want := range []string{
		`"type":"text_message"`,
		`"timestamp":"2026-08-21T10:00:00Z"`,
		`"message":"hello there"`,
		`"auto_tts":true`,
		`"voice":"en-US-GuyNeural"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("encoded frame missing %s: %s", want, got)
		}
	}
	if strings.Contains(got, `"payload"`) || strings.Contains(got, `"Header"`) {
		t.Errorf("frame is not flat: %s", got)
	}
}

func TestDecodeType(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    MessageType
		wantErr bool
	}{
		{"text message", `{"type":"text_message","message":"hi"}`, MsgTextMessage, false},
		{"ping", `{"type":"ping"}`, MsgPing, false},
		{"unknown type passes through", `{"type":"telemetry"}`, MessageType("telemetry"), false},
		{"missing type", `{"message":"hi"}`, "", true},
		{"not json", `nonsense`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeType([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeType error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DecodeType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeAs(t *testing.T) {
	frame := []byte(`{
		"type": "audio_data",
		"timestamp": "2026-08-21T10:00:00Z",
		"audio_data": "UklGRg==",
		"format": "wav",
		"sample_rate": 16000,
		"language": "en-US",
		"voice_settings": {"auto_tts": true, "speed": 1.5}
	}`)

	msg, err := DecodeAs[AudioData](frame)
	if err != nil {
		t.Fatalf("DecodeAs: %v", err)
	}
	if msg.Type != MsgAudioData {
		t.Errorf("Type = %q, want %q", msg.Type, MsgAudioData)
	}
	if msg.AudioData != "UklGRg==" {
		t.Errorf("AudioData = %q", msg.AudioData)
	}
	if msg.Format != "wav" || msg.SampleRate != 16000 || msg.Language != "en-US" {
		t.Errorf("metadata = %q/%d/%q", msg.Format, msg.SampleRate, msg.Language)
	}
	if msg.VoiceSettings == nil || !msg.VoiceSettings.AutoTTS || msg.VoiceSettings.Speed != 1.5 {
		t.Errorf("voice settings = %+v", msg.VoiceSettings)
	}
}

func TestDecodeAsOmittedFields(t *testing.T) {
	msg, err := DecodeAs[TextMessage]([]byte(`{"type":"text_message","message":"hi"}`))
	if err != nil {
		t.Fatalf("DecodeAs: %v", err)
	}
	if msg.VoiceSettings != nil {
		t.Errorf("absent voice_settings should decode to nil, got %+v", msg.VoiceSettings)
	}
	if msg.Timestamp != "" {
		t.Errorf("absent timestamp should stay empty, got %q", msg.Timestamp)
	}
}

func TestDecodeAsRejectsMalformed(t *testing.T) {
	if _, err := DecodeAs[PlaybackFinished]([]byte(`{"type":"playback_finished","chunk_index":"three"}`)); err == nil {
		t.Fatal("expected error for mistyped field")
	}
}

func TestEncodeDecodePlaybackFinished(t *testing.T) {
	data, err := Encode(PlaybackFinished{
		Header:     NewHeader(MsgPlaybackFinished),
		ResponseID: "resp-1",
		ChunkIndex: 2,
		Failed:     true,
		Error:      "decode error",
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	msg, err := DecodeAs[PlaybackFinished](data)
	if err != nil {
		t.Fatalf("DecodeAs: %v", err)
	}
	if msg.ResponseID != "resp-1" || msg.ChunkIndex != 2 {
		t.Errorf("chunk identity = %s:%d", msg.ResponseID, msg.ChunkIndex)
	}
	if !msg.Failed || msg.Error != "decode error" {
		t.Errorf("failure detail = %v %q", msg.Failed, msg.Error)
	}
}

func TestNewHeader(t *testing.T) {
	h := NewHeader(MsgPong)
	if h.Type != MsgPong {
		t.Errorf("Type = %q, want %q", h.Type, MsgPong)
	}
	stamp, err := time.Parse(time.RFC3339, h.Timestamp)
	if err != nil {
		t.Fatalf("timestamp %q is not RFC 3339: %v", h.Timestamp, err)
	}
	if d := time.Since(stamp); d < -time.Minute || d > time.Minute {
		t.Errorf("timestamp %q is not current", h.Timestamp)
	}
}
