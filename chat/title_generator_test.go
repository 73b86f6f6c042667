package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/sidekick/internal/profile"
	"github.com/hrygo/sidekick/store"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain title", "Go Basics", "Go Basics"},
		{"surrounding quotes stripped", `"Weather Query"`, "Weather Query"},
		{"single quotes stripped", "'Binary Search'", "Binary Search"},
		{"markdown characters removed", "# Go: `Streaming` *Basics*", "Go Streaming Basics"},
		{"word cap applied", "One Two Three Four Five Six", "One Two Three Four"},
		{"whitespace collapsed", "  Weather   Query  ", "Weather Query"},
		{"empty stays empty", "   ", ""},
		{"rune cap applied", strings.Repeat("漢", 60), strings.Repeat("漢", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeTitle(tt.input))
		})
	}
}

type fakeTitleStore struct {
	messages   []*store.Message
	listErr    error
	autoTitles map[string]string
}

func (f *fakeTitleStore) ListMessages(_ context.Context, _ string) ([]*store.Message, error) {
	return f.messages, f.listErr
}

func (f *fakeTitleStore) SetAutoTitle(_ context.Context, conversationUID string, title string) error {
	if f.autoTitles == nil {
		f.autoTitles = make(map[string]string)
	}
	f.autoTitles[conversationUID] = title
	return nil
}

func titleServer(t *testing.T, content string, capture *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		if capture != nil && len(request.Messages) > 1 {
			*capture = request.Messages[1].Content
		}

		response := map[string]any{
			"id":     "title-1",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{"total_tokens": 12},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
}

func testProfile(baseURL string) *profile.Profile {
	return &profile.Profile{
		LLMAPIKey:  "test-key",
		LLMBaseURL: baseURL,
		LLMModel:   "test-model",
	}
}

func TestGenerateReturnsSanitizedTitle(t *testing.T) {
	server := titleServer(t, "\"Go: Streaming Basics\"\n", nil)
	defer server.Close()

	tg := NewTitleGenerator(testProfile(server.URL), &fakeTitleStore{}, nil)
	title, err := tg.Generate(context.Background(), []*store.Message{
		{Role: store.RoleUser, Content: "How do I stream SSE in Go?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Go Streaming Basics", title)
}

func TestGenerateFallsBackOnEmptyTitle(t *testing.T) {
	server := titleServer(t, "  \"\"  ", nil)
	defer server.Close()

	tg := NewTitleGenerator(testProfile(server.URL), &fakeTitleStore{}, nil)
	title, err := tg.Generate(context.Background(), []*store.Message{
		{Role: store.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, fallbackTitle, title)
}

func TestGenerateUsesOnlyRecentMessages(t *testing.T) {
	var prompt string
	server := titleServer(t, "Recent Only", &prompt)
	defer server.Close()

	messages := make([]*store.Message, 0, 12)
	for i := 0; i < 12; i++ {
		messages = append(messages, &store.Message{
			Role:    store.RoleUser,
			Content: fmt.Sprintf("message-%d", i),
		})
	}

	tg := NewTitleGenerator(testProfile(server.URL), &fakeTitleStore{}, nil)
	_, err := tg.Generate(context.Background(), messages)
	require.NoError(t, err)

	assert.NotContains(t, prompt, "message-3")
	assert.Contains(t, prompt, "message-4")
	assert.Contains(t, prompt, "message-11")
}

func TestGenerateRejectsEmptyConversation(t *testing.T) {
	tg := NewTitleGenerator(testProfile("http://localhost:0"), &fakeTitleStore{}, nil)
	_, err := tg.Generate(context.Background(), nil)
	require.Error(t, err)
}

func TestRetitleAppliesAutoTitle(t *testing.T) {
	server := titleServer(t, "Weather Query", nil)
	defer server.Close()

	titleStore := &fakeTitleStore{
		messages: []*store.Message{
			{Role: store.RoleUser, Content: "what is the weather"},
			{Role: store.RoleAssistant, Content: "sunny"},
		},
	}
	tg := NewTitleGenerator(testProfile(server.URL), titleStore, nil)

	title, err := tg.Retitle(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Weather Query", title)
	assert.Equal(t, "Weather Query", titleStore.autoTitles["c1"])
}
