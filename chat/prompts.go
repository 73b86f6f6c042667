package chat

// DefaultSystemPrompt is prepended to every turn unless the caller selects a
// named prompt.
const DefaultSystemPrompt = `You are Sidekick, a helpful AI assistant.
- Always provide correct, accurate, and up-to-date information.
- Keep responses clear and concise.
- Use a professional tone.
- Avoid repetitive or excessive emojis (use at most one if necessary).`

// SystemPrompts are the selectable assistant personas.
var SystemPrompts = map[string]string{
	"General":    "You are a helpful assistant.",
	"Code":       "You are a helpful coding assistant. Provide detailed explanations and code examples.",
	"Summarizer": "You are a summarization assistant. Provide concise summaries of any given text.",
}

// SystemPromptFor resolves a persona name, falling back to the default
// prompt for unknown names.
func SystemPromptFor(name string) string {
	if prompt, ok := SystemPrompts[name]; ok {
		return prompt
	}
	return DefaultSystemPrompt
}
