package text

import "testing"

func TestNormalizeForSpeech(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"markdown bold", "This is **important** news", "This is important news"},
		{"markdown mixed", "Use `code` and *emphasis* __here__", "Use code and emphasis here"},
		{"emoji stripped", "Great job! 🎉🎉 Keep going 🚀", "Great job! Keep going"},
		{"whitespace collapsed", "too   many\n\nspaces\there", "too many spaces here"},
		{"already clean", "Nothing to change.", "Nothing to change."},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeForSpeech(tt.input); got != tt.want {
				t.Errorf("NormalizeForSpeech(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("short text should pass through, got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello" {
		t.Errorf("Truncate = %q, want %q", got, "hello")
	}
	// Rune-aware: must not split a multi-byte character.
	if got := Truncate("héllo wörld", 7); got != "héllo w" {
		t.Errorf("Truncate = %q, want %q", got, "héllo w")
	}
	if got := Truncate("anything", 0); got != "" {
		t.Errorf("zero max should empty the string, got %q", got)
	}
}

func TestExtractSentence(t *testing.T) {
	tests := []struct {
		name         string
		buffer       string
		wantSentence string
		wantRest     string
		wantOK       bool
	}{
		{
			name:         "complete sentence with remainder",
			buffer:       "The weather is lovely today. And tomorrow",
			wantSentence: "The weather is lovely today.",
			wantRest:     "And tomorrow",
			wantOK:       true,
		},
		{
			name:         "splits at last boundary",
			buffer:       "First part is done. Second part too! trailing",
			wantSentence: "First part is done. Second part too!",
			wantRest:     "trailing",
			wantOK:       true,
		},
		{
			name:     "no boundary",
			buffer:   "still streaming with no end in sight",
			wantRest: "still streaming with no end in sight",
			wantOK:   false,
		},
		{
			name:     "boundary too early",
			buffer:   "Hi. and then",
			wantRest: "Hi. and then",
			wantOK:   false,
		},
		{
			name:         "question mark boundary",
			buffer:       "How are you doing today? I was",
			wantSentence: "How are you doing today?",
			wantRest:     "I was",
			wantOK:       true,
		},
		{
			name:         "semicolon boundary",
			buffer:       "Let me think about that; meanwhile",
			wantSentence: "Let me think about that;",
			wantRest:     "meanwhile",
			wantOK:       true,
		},
		{
			name:     "empty buffer",
			buffer:   "",
			wantRest: "",
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sentence, rest, ok := ExtractSentence(tt.buffer)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if sentence != tt.wantSentence {
				t.Errorf("sentence = %q, want %q", sentence, tt.wantSentence)
			}
			if rest != tt.wantRest {
				t.Errorf("rest = %q, want %q", rest, tt.wantRest)
			}
		})
	}
}

func TestFlush(t *testing.T) {
	tests := []struct {
		name   string
		buffer string
		want   string
		wantOK bool
	}{
		{"short trailing fragment", "Bye!", "Bye!", true},
		{"trims whitespace", "  see you soon \n", "see you soon", true},
		{"empty", "", "", false},
		{"whitespace only", "   \t", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Flush(tt.buffer)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Flush(%q) = %q, want %q", tt.buffer, got, tt.want)
			}
		})
	}
}
