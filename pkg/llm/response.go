package llm

import "strings"

// Output item and content types of interest in a Responses payload.
const (
	OutputTypeMessage = "message"
	ContentTypeText   = "output_text"
)

// ResponsesResponse represents a non-streaming Responses endpoint reply.
type ResponsesResponse struct {
	ID     string       `json:"id,omitempty"`
	Model  string       `json:"model,omitempty"`
	Output []OutputItem `json:"output"`
}

// OutputItem is one entry of a Responses output list.
type OutputItem struct {
	Type    string          `json:"type,omitempty"`
	Role    string          `json:"role,omitempty"`
	Content []OutputContent `json:"content,omitempty"`
}

// OutputContent is a content fragment nested in an OutputItem.
type OutputContent struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// Text concatenates, in order, every textual fragment of every message item.
// Items or fragments without a type are accepted as text.
func (r *ResponsesResponse) Text() string {
	var sb strings.Builder
	for _, item := range r.Output {
		if item.Type != "" && item.Type != OutputTypeMessage {
			continue
		}
		for _, c := range item.Content {
			if c.Type != "" && c.Type != ContentTypeText && c.Type != "text" {
				continue
			}
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

// ChatCompletionResponse represents a non-streaming chat completions reply.
type ChatCompletionResponse struct {
	ID      string   `json:"id,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one completion alternative.
type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Usage reports token accounting returned by the server.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Text returns the content of the first choice, or empty string if none.
func (r *ChatCompletionResponse) Text() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}
