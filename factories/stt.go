package factories

import (
	"errors"

	"voicekit/core"
	stthandler "voicekit/handlers/stt"
	groqstt "voicekit/services/groq/stt"
)

// STTFactoryConfig holds provider-specific configs for transcription
// service construction. Set exactly one provider config; the rest should
// be left nil.
type STTFactoryConfig struct {
	GroqConfig *groqstt.Config `json:"groq,omitempty"`
}

// BuildSTTService constructs an ISTTService from the given factory config.
// Exactly one provider config must be non-nil.
func BuildSTTService(config STTFactoryConfig, logger *core.Logger) (stthandler.ISTTService, error) {
	if config.GroqConfig != nil {
		return groqstt.NewGroqSTTService(*config.GroqConfig, logger), nil
	}
	return nil, errors.New("STTFactoryConfig: no provider config specified")
}
