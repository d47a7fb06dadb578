package llm

// ConversationTurn represents a completed user/assistant exchange as it is kept in history.
type ConversationTurn struct {
	User      Message `json:"user"`
	Assistant Message `json:"assistant"`
}

// NewConversationTurn pairs a user utterance with the assistant's reply.
func NewConversationTurn(userText, assistantText string) ConversationTurn {
	return ConversationTurn{
		User:      NewUserMessage(userText),
		Assistant: NewAssistantMessage(assistantText),
	}
}

// Messages flattens the turn into its two messages, user first.
func (t ConversationTurn) Messages() []Message {
	return []Message{t.User, t.Assistant}
}
