package history

import (
	"context"
	"log/slog"
	"sync"

	"github.com/candivox/candivox/pkg/provider/llm"
)

// FallbackReply is returned to the candidate whenever the LLM call fails.
// The failed turn is not recorded, so the candidate can simply repeat it.
const FallbackReply = "Let me rephrase that..."

// DefaultContextWindow is how many trailing history messages are sent to the
// LLM in addition to the system prompt and the new user input.
const DefaultContextWindow = 6

// Reply is the outcome of one Respond call. Fallback is true when the text is
// the canned recovery response rather than a model completion.
type Reply struct {
	Text     string
	Fallback bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithContextWindow overrides the number of trailing history messages
// included in each completion request.
func WithContextWindow(n int) ManagerOption {
	return func(m *Manager) { m.window = n }
}

// WithTemperature sets the sampling temperature forwarded to the LLM.
func WithTemperature(t float64) ManagerOption {
	return func(m *Manager) { m.temperature = t }
}

// WithLogger overrides the manager's logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// Manager drives interview turns: it assembles the LLM context from stored
// history, calls the provider, and records successful exchanges.
type Manager struct {
	store  *Store
	llm    llm.Provider
	logger *slog.Logger

	// mu guards the tunables, which can be hot-reloaded at runtime.
	mu          sync.Mutex
	window      int
	temperature float64
}

// NewManager creates a Manager over store and provider.
func NewManager(store *Store, provider llm.Provider, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		llm:         provider,
		window:      DefaultContextWindow,
		temperature: 0.7,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store exposes the underlying conversation store.
func (m *Manager) Store() *Store {
	return m.store
}

// SetContextWindow updates the context window at runtime. Non-positive values
// restore the default.
func (m *Manager) SetContextWindow(n int) {
	if n <= 0 {
		n = DefaultContextWindow
	}
	m.mu.Lock()
	m.window = n
	m.mu.Unlock()
}

// SetTemperature updates the sampling temperature at runtime.
func (m *Manager) SetTemperature(t float64) {
	m.mu.Lock()
	m.temperature = t
	m.mu.Unlock()
}

// Respond generates the interviewer's reply to userInput within a session.
// An empty sessionID targets the current session.
//
// The completion context is: the session's system prompt (included when
// useSystemPrompt is set, and always on a session with no history yet),
// followed by the trailing window of prior messages oldest-first, followed by
// userInput. On success the user and assistant turns are appended to history
// and the snapshot persisted. On LLM failure nothing is recorded and the
// reply carries FallbackReply with Fallback set.
//
// A non-nil error reports a persistence failure after a successful
// completion; Reply.Text is still valid in that case.
func (m *Manager) Respond(ctx context.Context, sessionID, userInput string, useSystemPrompt bool) (Reply, error) {
	m.mu.Lock()
	window, temperature := m.window, m.temperature
	m.mu.Unlock()

	prompt := m.store.SystemPrompt(sessionID)
	prior := m.store.History(sessionID, 0)

	messages := make([]llm.Message, 0, window+2)
	if useSystemPrompt || len(prior) == 0 {
		messages = append(messages, llm.Message{Role: string(RoleSystem), Content: prompt})
	}
	if window > 0 && len(prior) > window {
		prior = prior[len(prior)-window:]
	}
	for _, msg := range prior {
		messages = append(messages, llm.Message{Role: string(msg.Role), Content: msg.Content})
	}
	messages = append(messages, llm.Message{Role: string(RoleUser), Content: userInput})

	resp, err := m.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		m.logger.Warn("interview completion failed, returning recovery reply",
			"session_id", sessionID, "error", err)
		return Reply{Text: FallbackReply, Fallback: true}, nil
	}

	if err := m.store.AddMessage(sessionID, Message{Role: RoleUser, Content: userInput}); err != nil {
		return Reply{Text: resp.Content}, err
	}
	if err := m.store.AddMessage(sessionID, Message{Role: RoleAssistant, Content: resp.Content}); err != nil {
		return Reply{Text: resp.Content}, err
	}
	return Reply{Text: resp.Content}, nil
}
