package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memoryBackend struct {
	mu     sync.RWMutex
	events []AuditEvent
}

// NewMemoryService keeps events in process. It serves local runs and tests.
func NewMemoryService() Service {
	return newService(&memoryBackend{})
}

func (b *memoryBackend) index(_ context.Context, event *AuditEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, *event)
	return nil
}

func (b *memoryBackend) search(_ context.Context, filters map[string]interface{}, from, size int) ([]AuditEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	matched := make([]AuditEvent, 0)
	for i := len(b.events) - 1; i >= 0; i-- {
		if matches(b.events[i], filters) {
			matched = append(matched, b.events[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if from >= len(matched) {
		return []AuditEvent{}, nil
	}
	matched = matched[from:]
	if size < len(matched) {
		matched = matched[:size]
	}
	return matched, nil
}

func matches(event AuditEvent, filters map[string]interface{}) bool {
	fields := map[string]string{
		"event_type":  string(event.EventType),
		"user_id":     event.UserID,
		"username":    event.Username,
		"action":      event.Action,
		"resource":    event.Resource,
		"resource_id": event.ResourceID,
		"request_id":  event.RequestID,
		"status":      event.Status,
		"sensitivity": event.Sensitivity,
	}
	for field, want := range filters {
		got, ok := fields[field]
		if !ok || got != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
