package llm

// Stream event types carried in the "type" field of a Responses SSE frame.
const (
	EventOutputTextDelta = "response.output_text.delta"
	EventError           = "error"
	EventResponseError   = "response.error"
	EventResponseFailed  = "response.failed"
)

// DoneSentinel is the data payload that terminates a stream.
const DoneSentinel = "[DONE]"

// StreamFrame is the decoded JSON body of a single "data:" line.
// It covers both the Responses event shape and the chat completions chunk shape.
type StreamFrame struct {
	Type     string       `json:"type,omitempty"`
	Delta    string       `json:"delta,omitempty"`
	Error    *ErrorDetail `json:"error,omitempty"`
	Response *struct {
		Error *ErrorDetail `json:"error,omitempty"`
	} `json:"response,omitempty"`

	// Chat completions chunk
	Choices []StreamChoice `json:"choices,omitempty"`
}

// StreamChoice is one choice of a chat completions chunk.
type StreamChoice struct {
	Delta struct {
		Role    string `json:"role,omitempty"`
		Content string `json:"content,omitempty"`
	} `json:"delta"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

// ChunkContent returns the delta content of the first choice.
func (f *StreamFrame) ChunkContent() string {
	if len(f.Choices) > 0 {
		return f.Choices[0].Delta.Content
	}
	return ""
}

// FailureDetail returns the error attached to an error-flagged frame, if any.
func (f *StreamFrame) FailureDetail() *ErrorDetail {
	if f.Error != nil {
		return f.Error
	}
	if f.Response != nil && f.Response.Error != nil {
		return f.Response.Error
	}
	return nil
}
