package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const MaxLogEntries = 1000
const MaxLogMessageSize = 4096

// UnitState holds the mutable state of one isolation unit: captured logs,
// the outbound fetch budget and anything that must be torn down with the
// unit. Go callbacks registered into the engine close over it, and fetch
// goroutines touch it concurrently, so every method locks.
type UnitState struct {
	mu           sync.Mutex
	logs         []LogEntry
	fetchCount   int
	maxFetches   int
	fetchCancels map[string]context.CancelFunc
	nextFetchID  int64
	cleanups     []func()
	cleared      bool
}

// NewUnitState creates state allowing up to maxFetches outbound requests.
func NewUnitState(maxFetches int) *UnitState {
	return &UnitState{maxFetches: maxFetches}
}

// AddLog appends a log entry, dropping it once MaxLogEntries is reached and
// truncating oversized messages.
func (s *UnitState) AddLog(level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logs) >= MaxLogEntries {
		return
	}
	if len(message) > MaxLogMessageSize {
		message = message[:MaxLogMessageSize] + "...(truncated)"
	}
	s.logs = append(s.logs, LogEntry{
		Level:   level,
		Message: message,
		Time:    time.Now(),
	})
}

// Logs returns a copy of the captured log entries.
func (s *UnitState) Logs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// ReserveFetch consumes one unit of the fetch budget.
func (s *UnitState) ReserveFetch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleared {
		return ErrUnitTerminated
	}
	if s.fetchCount >= s.maxFetches {
		return fmt.Errorf("exceeded maximum fetch requests (%d)", s.maxFetches)
	}
	s.fetchCount++
	return nil
}

// RegisterFetchCancel stores a cancel function for an in-flight fetch and
// returns the fetch ID it is filed under. If the unit is already being torn
// down the fetch is cancelled immediately.
func (s *UnitState) RegisterFetchCancel(cancel context.CancelFunc) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFetchID++
	id := strconv.FormatInt(s.nextFetchID, 10)
	if s.cleared {
		cancel()
		return id
	}
	if s.fetchCancels == nil {
		s.fetchCancels = make(map[string]context.CancelFunc)
	}
	s.fetchCancels[id] = cancel
	return id
}

// RemoveFetchCancel removes and returns the cancel function for a fetch.
func (s *UnitState) RemoveFetchCancel(fetchID string) context.CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel := s.fetchCancels[fetchID]
	delete(s.fetchCancels, fetchID)
	return cancel
}

// CallFetchCancel cancels the given fetch, if it is still in flight.
func (s *UnitState) CallFetchCancel(fetchID string) {
	if cancel := s.RemoveFetchCancel(fetchID); cancel != nil {
		cancel()
	}
}

// RegisterCleanup adds a function to run when the state is cleared.
// Cleanups run in reverse registration order.
func (s *UnitState) RegisterCleanup(fn func()) {
	s.mu.Lock()
	s.cleanups = append(s.cleanups, fn)
	s.mu.Unlock()
}

// Clear cancels in-flight fetches and runs registered cleanups. It is safe
// to call more than once.
func (s *UnitState) Clear() {
	s.mu.Lock()
	if s.cleared {
		s.mu.Unlock()
		return
	}
	s.cleared = true
	cleanups := s.cleanups
	s.cleanups = nil
	cancels := s.fetchCancels
	s.fetchCancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

// JsEscape quotes s as a JavaScript string literal.
func JsEscape(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
