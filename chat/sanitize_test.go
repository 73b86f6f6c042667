package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeResponse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "just some text", "just some text"},
		{"single emoji kept", "nice 🙂", "nice 🙂"},
		{"two emoji kept", "good 🙂🙂", "good 🙂🙂"},
		{"run of three collapsed", "wow 🎉🎉🎉", "wow 🎉"},
		{"long run collapsed", "party 🎉🎊🥳🎉🎊 time", "party 🎉 time"},
		{"variation selector travels with emoji", "ok ☺️☺️☺️", "ok ☺️"},
		{"separate runs collapse independently", "🎉🎉🎉 and 🔥🔥🔥", "🎉 and 🔥"},
		{"emoji split by text survive", "🎉 🎉 🎉", "🎉 🎉 🎉"},
		{"empty string", "", ""},
		{"multibyte text untouched", "héllo 世界", "héllo 世界"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeResponse(tt.input))
		})
	}
}

func TestSystemPromptFor(t *testing.T) {
	assert.Equal(t, SystemPrompts["Code"], SystemPromptFor("Code"))
	assert.Equal(t, DefaultSystemPrompt, SystemPromptFor("nope"))
	assert.Equal(t, DefaultSystemPrompt, SystemPromptFor(""))
}
