package factories

import (
	"errors"

	"voicekit/core"
	ttshandler "voicekit/handlers/tts"
	edgetts "voicekit/services/edge/tts"
)

// TTSFactoryConfig holds provider-specific configs for synthesis service
// construction. Set exactly one provider config; the rest should be left
// nil.
type TTSFactoryConfig struct {
	EdgeConfig *edgetts.EdgeTTSConfig `json:"edge,omitempty"`
}

// BuildTTSService constructs a TTSService from the given factory config.
// Exactly one provider config must be non-nil.
func BuildTTSService(config TTSFactoryConfig, logger *core.Logger) (ttshandler.TTSService, error) {
	if config.EdgeConfig != nil {
		return edgetts.NewEdgeTTS(*config.EdgeConfig, logger), nil
	}
	return nil, errors.New("TTSFactoryConfig: no provider config specified")
}
