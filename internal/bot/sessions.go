package bot

import "sync"

// State names the input a chat is currently expected to provide.
type State string

// Session states for the admin data-entry flows. A chat is idle when
// it has no entry in the session store.
const (
	StateAwaitingAddUser    State = "awaiting_add_user"
	StateAwaitingUpdateUser State = "awaiting_update_user"
	StateAwaitingDeleteUser State = "awaiting_delete_user"
)

// Sessions tracks per-chat conversation state. Transitions are
// idle -> awaiting-field (Set) -> idle (Clear); there is no other
// path, and reads never mutate.
type Sessions struct {
	mu     sync.Mutex
	states map[int64]State
}

// NewSessions creates an empty session store.
func NewSessions() *Sessions {
	return &Sessions{states: make(map[int64]State)}
}

// Get returns the chat's pending state, if any.
func (s *Sessions) Get(chatID int64) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[chatID]
	return state, ok
}

// Set marks the chat as awaiting the given input.
func (s *Sessions) Set(chatID int64, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[chatID] = state
}

// Clear returns the chat to idle.
func (s *Sessions) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, chatID)
}
