// Package ledger stores terminal delivery outcomes. Every backend is
// append-only; HasSent is answered from the recorded SENT entries.
package ledger

import (
	"context"
	"sync"

	"github.com/example/groupmsg/internal/domain/delivery"
)

// Memory keeps entries for the lifetime of the process. Used by dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	entries []delivery.Attempt
	sent    map[string]bool
}

func NewMemory() *Memory {
	return &Memory{sent: map[string]bool{}}
}

func (m *Memory) Append(_ context.Context, a delivery.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, a)
	if a.Outcome == delivery.OutcomeSent {
		m.sent[a.ContactKey] = true
	}
	return nil
}

func (m *Memory) HasSent(_ context.Context, phoneE164 string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[phoneE164], nil
}

func (m *Memory) List(_ context.Context, phoneE164 string) ([]delivery.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filter(m.entries, phoneE164), nil
}

func filter(entries []delivery.Attempt, key string) []delivery.Attempt {
	out := make([]delivery.Attempt, 0, len(entries))
	for _, a := range entries {
		if key == "" || a.ContactKey == key {
			out = append(out, a)
		}
	}
	return out
}
