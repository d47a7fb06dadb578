package chat

import (
	"github.com/papercomputeco/parley/pkg/history"
	"github.com/papercomputeco/parley/pkg/llm"
)

// UserMessage returns the user turn sent for text: the utterance followed by the
// language directive.
func UserMessage(text string, lang Language) llm.Message {
	return llm.NewUserMessage(text + lang.Directive())
}

// BuildRequest assembles the request body for one exchange. History is trimmed
// with the directive already appended so the budget accounts for it. The result
// is *llm.ResponsesRequest or, for DialectChat, *llm.ChatCompletionRequest.
func BuildRequest(text string, lang Language, hist *history.Manager, cfg Config, stream bool) any {
	system := llm.NewSystemMessage(cfg.SystemPrompt)
	user := UserMessage(text, lang)

	turns := append(hist.Trim(system, user), user)

	if cfg.Dialect == DialectChat {
		return &llm.ChatCompletionRequest{
			Model:       cfg.Model,
			Messages:    append([]llm.Message{system}, turns...),
			Stream:      stream,
			Temperature: cfg.Temperature,
		}
	}

	return &llm.ResponsesRequest{
		Model:        cfg.Model,
		Instructions: system.Content,
		Input:        turns,
		Stream:       stream,
		Temperature:  cfg.Temperature,
	}
}
