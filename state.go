package auth

import (
	"context"
	"encoding/json"
	"sync"
)

// AuthState is the client side view of the current session
type AuthState struct {
	User            *User `json:"user"`
	IsAuthenticated bool  `json:"isAuthenticated"`
}

// Valid reports whether the state holds the authenticated invariant
func (s AuthState) Valid() bool {
	return s.IsAuthenticated == (s.User != nil)
}

func (s AuthState) clone() AuthState {
	return AuthState{
		User:            s.User.Clone(),
		IsAuthenticated: s.IsAuthenticated,
	}
}

func encodeState(s AuthState) ([]byte, error) {
	return json.Marshal(s)
}

// decodeState parses a persisted state. Anything that breaks the
// authenticated invariant is reset to the unauthenticated default.
func decodeState(data []byte) (AuthState, error) {
	var s AuthState
	if err := json.Unmarshal(data, &s); err != nil {
		return AuthState{}, err
	}
	if !s.Valid() {
		return AuthState{}, nil
	}
	return s, nil
}

// MemoryStorage keeps state in process memory
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ StateStorage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: map[string][]byte{}}
}

func (m *MemoryStorage) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[key]
	if !ok {
		return nil, ErrStateNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), data...)
	return nil
}
