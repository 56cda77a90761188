package edge

import "fmt"

// DefaultVoice is used when the client does not pick one.
const DefaultVoice = "en-US-RogerNeural"

// voiceCategories groups the catalog for the voices endpoint.
var voiceCategories = map[string][]string{
	"professional":   {"en-US-GuyNeural", "en-US-AnaNeural", "en-US-ChristopherNeural"},
	"friendly":       {"en-US-AriaNeural", "en-US-CoraNeural", "en-US-AmberNeural"},
	"conversational": {"en-US-JennyNeural", "en-US-BrandonNeural"},
	"authoritative":  {"en-US-DavisNeural", "en-US-ElizabethNeural"},
}

// allVoices is the full en-US neural voice list the service accepts.
var allVoices = []string{
	"en-US-AriaNeural",
	"en-US-GuyNeural",
	"en-US-JennyNeural",
	"en-US-DavisNeural",
	"en-US-AmberNeural",
	"en-US-AnaNeural",
	"en-US-BrandonNeural",
	"en-US-ChristopherNeural",
	"en-US-CoraNeural",
	"en-US-ElizabethNeural",
	"en-US-EricNeural",
	"en-US-MichelleNeural",
	"en-US-RogerNeural",
	"en-US-SteffanNeural",
}

// voiceAliases maps voice names from other providers (and a few informal
// shorthands) onto Edge equivalents so clients built against those APIs keep
// working.
var voiceAliases = map[string]string{
	"Chip-PlayAI":    "en-US-BrandonNeural",
	"Fritz-PlayAI":   "en-US-GuyNeural",
	"Celeste-PlayAI": "en-US-AriaNeural",
	"Quinn-PlayAI":   "en-US-AnaNeural",
	"Atlas-PlayAI":   "en-US-DavisNeural",
	"Thunder-PlayAI": "en-US-DavisNeural",
	"Gail-PlayAI":    "en-US-CoraNeural",
	"Deedee-PlayAI":  "en-US-AmberNeural",

	"en-US-Standard-A": "en-US-AnaNeural",
	"en-US-Standard-B": "en-US-BrandonNeural",
	"en-US-Standard-C": "en-US-AriaNeural",
	"en-US-Standard-D": "en-US-GuyNeural",
	"en-US-Standard-E": "en-US-EricNeural",
	"en-US-Standard-F": "en-US-AmberNeural",

	"male":           "en-US-GuyNeural",
	"female":         "en-US-JennyNeural",
	"professional":   "en-US-GuyNeural",
	"friendly":       "en-US-AriaNeural",
	"conversational": "en-US-JennyNeural",

	"paul": "en-US-GuyNeural",
	"Paul": "en-US-GuyNeural",
}

// MapVoiceName resolves provider aliases to Edge voice names. Names without
// an alias pass through unchanged.
func MapVoiceName(voice string) string {
	if mapped, ok := voiceAliases[voice]; ok {
		return mapped
	}
	return voice
}

// IsKnownVoice reports whether the given name is in the Edge catalog.
func IsKnownVoice(voice string) bool {
	for _, v := range allVoices {
		if v == voice {
			return true
		}
	}
	return false
}

// AllVoices returns a copy of the full voice list.
func AllVoices() []string {
	out := make([]string, len(allVoices))
	copy(out, allVoices)
	return out
}

// VoicesByCategory returns the catalog grouped by speaking style.
func VoicesByCategory() map[string][]string {
	out := make(map[string][]string, len(voiceCategories))
	for category, voices := range voiceCategories {
		list := make([]string, len(voices))
		copy(list, voices)
		out[category] = list
	}
	return out
}

// AvailableVoices returns the voices in one category, or the full list for
// "all". Unknown categories return an empty slice.
func AvailableVoices(category string) []string {
	if category == "all" || category == "" {
		return AllVoices()
	}
	voices, ok := voiceCategories[category]
	if !ok {
		return []string{}
	}
	out := make([]string, len(voices))
	copy(out, voices)
	return out
}

// VoiceRecommendations suggests voices per use case for the models-info
// endpoint.
func VoiceRecommendations() map[string][]string {
	return map[string][]string{
		"interview_responses":       {"en-US-GuyNeural", "en-US-AnaNeural"},
		"casual_conversation":       {"en-US-JennyNeural", "en-US-BrandonNeural"},
		"professional_presentation": {"en-US-GuyNeural", "en-US-ChristopherNeural"},
		"friendly_chat":             {"en-US-AriaNeural", "en-US-CoraNeural"},
	}
}

// ConvertSpeedToRate converts a speed multiplier (0.5-2.0) to the prosody
// rate string Edge expects, e.g. 1.2 -> "+20%" and 0.8 -> "-20%".
func ConvertSpeedToRate(speed float64) string {
	if speed == 1.0 {
		return "+0%"
	}
	if speed > 1.0 {
		return fmt.Sprintf("+%d%%", int((speed-1.0)*100))
	}
	return fmt.Sprintf("-%d%%", int((1.0-speed)*100))
}
