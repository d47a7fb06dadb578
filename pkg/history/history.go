// Package history keeps the rolling, bounded list of user/assistant turns that gives
// the remote model its conversational context.
package history

import (
	"sync"

	"github.com/rivo/uniseg"

	"github.com/papercomputeco/parley/pkg/llm"
)

const (
	// DefaultMaxItems is the default cap on stored turns (50 user/assistant pairs).
	DefaultMaxItems = 100

	// DefaultBudget is the default context budget in characters: 4000 tokens at
	// roughly 4 characters per token.
	DefaultBudget = 4000 * 4
)

// Manager owns the live history. Turns are always stored as adjacent
// (user, assistant) pairs and only ever leave the list oldest-first.
type Manager struct {
	mu       sync.RWMutex
	turns    []llm.Message
	maxItems int
	budget   int
}

// New creates an empty Manager. Non-positive values select the defaults and an odd
// maxItems is rounded down so a dangling unpaired turn can never be kept.
func New(maxItems, budget int) *Manager {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if maxItems%2 != 0 {
		maxItems--
	}
	if maxItems < 2 {
		maxItems = 2
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Manager{maxItems: maxItems, budget: budget}
}

// MaxItems returns the turn cap.
func (m *Manager) MaxItems() int {
	return m.maxItems
}

// Budget returns the context budget in characters.
func (m *Manager) Budget() int {
	return m.budget
}

// Trim returns a copy of the history with the oldest pairs removed until system,
// history and next together fit the budget, or until nothing is left to remove.
// A next message that is over budget on its own is tolerated: trimming stops at an
// empty history and the caller sends it as-is. The live history is not modified.
func (m *Manager) Trim(system, next llm.Message) []llm.Message {
	m.mu.RLock()
	kept := make([]llm.Message, len(m.turns))
	copy(kept, m.turns)
	m.mu.RUnlock()

	fixed := Characters(system.Content) + Characters(next.Content)
	total := fixed + Count(kept)
	for total > m.budget && len(kept) > 0 {
		total -= Characters(kept[0].Content) + Characters(kept[1].Content)
		kept = kept[2:]
	}
	return kept
}

// Commit appends exactly one (user, assistant) pair and then drops the oldest
// pairs while the history is over its cap.
func (m *Manager) Commit(userText, assistantText string) {
	turn := llm.NewConversationTurn(userText, assistantText)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, turn.Messages()...)
	for len(m.turns) > m.maxItems {
		m.turns = m.turns[2:]
	}
}

// Clear empties the history unconditionally.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.turns = nil
	m.mu.Unlock()
}

// Turns returns a copy of the stored turns, oldest first.
func (m *Manager) Turns() []llm.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]llm.Message, len(m.turns))
	copy(out, m.turns)
	return out
}

// Pairs returns the stored turns grouped as conversation turns, oldest first.
func (m *Manager) Pairs() []llm.ConversationTurn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pairs := make([]llm.ConversationTurn, 0, len(m.turns)/2)
	for i := 0; i+1 < len(m.turns); i += 2 {
		pairs = append(pairs, llm.ConversationTurn{User: m.turns[i], Assistant: m.turns[i+1]})
	}
	return pairs
}

// Len returns the number of stored turns.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// Characters counts user-perceived characters (grapheme clusters) in s.
func Characters(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// Count returns the total character count across messages.
func Count(messages []llm.Message) int {
	n := 0
	for _, msg := range messages {
		n += Characters(msg.Content)
	}
	return n
}
