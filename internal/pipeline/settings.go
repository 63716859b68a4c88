package pipeline

import (
	"github.com/MrWong99/voxloop/internal/config"
	"github.com/MrWong99/voxloop/pkg/provider/tts"
)

// SettingsFromConfig maps the pipeline section of the config file.
func SettingsFromConfig(p config.PipelineConfig) Settings {
	return Settings{
		SystemPrompt: p.SystemPrompt,
		MaxTokens:    p.MaxTokens,
		Temperature:  p.Temperature,
		Language:     p.Language,
		Voice: tts.Voice{
			ID:    p.Voice.VoiceID,
			Speed: p.Voice.SpeedFactor,
		},
	}
}
