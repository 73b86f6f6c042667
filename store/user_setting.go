package store

import (
	"context"
	"encoding/json"
	"log/slog"
)

// UserSetting is a client-local key-value slot, e.g. the last-selected
// conversation or the persisted generation settings.
type UserSetting struct {
	Key   string
	Value string
}

// Well-known user setting keys.
const (
	// SettingActiveConversation holds the UID of the last-selected conversation.
	SettingActiveConversation = "active-conversation"
	// SettingGeneration holds the JSON-encoded generation settings
	// (model, temperature, max tokens, theme).
	SettingGeneration = "generation"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
)

// GenerationSetting is the decoded value of the SettingGeneration slot. An
// empty Model defers to the profile's default model.
type GenerationSetting struct {
	Model       string  `json:"model,omitempty"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	Theme       string  `json:"theme,omitempty"`
}

func DefaultGenerationSetting() *GenerationSetting {
	return &GenerationSetting{
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
}

// GetGenerationSetting decodes the persisted generation settings. A missing or
// malformed slot yields the defaults; settings tuning is best-effort and must
// never block a turn.
func (s *Store) GetGenerationSetting(ctx context.Context) (*GenerationSetting, error) {
	setting, err := s.driver.GetUserSetting(ctx, SettingGeneration)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return DefaultGenerationSetting(), nil
	}

	result := DefaultGenerationSetting()
	if err := json.Unmarshal([]byte(setting.Value), result); err != nil {
		slog.Warn("malformed generation setting, using defaults", "err", err)
		return DefaultGenerationSetting(), nil
	}
	if result.MaxTokens <= 0 {
		result.MaxTokens = defaultMaxTokens
	}
	if result.Temperature < 0 {
		result.Temperature = defaultTemperature
	}
	return result, nil
}
