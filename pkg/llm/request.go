package llm

// ResponsesRequest is the request body for the Responses endpoint.
// The system instruction travels in Instructions and never appears in Input.
type ResponsesRequest struct {
	Model        string    `json:"model"`
	Instructions string    `json:"instructions"`
	Input        []Message `json:"input"`
	Stream       bool      `json:"stream"`
	Temperature  float64   `json:"temperature"`
}

// ChatCompletionRequest is the request body for the legacy chat completions endpoint.
// The system instruction is the first entry of Messages.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
}
