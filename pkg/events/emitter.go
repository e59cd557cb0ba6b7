package events

import (
	"sync"

	"go.uber.org/zap"
)

// Emitter receives engine events. Implementations must not block; the core
// emits synchronously after state transitions commit.
type Emitter interface {
	Emit(ev Event)
}

// LogEmitter reports events as structured log lines.
type LogEmitter struct {
	log *zap.Logger
}

func NewLogEmitter(log *zap.Logger) *LogEmitter {
	return &LogEmitter{log: log.Named("events")}
}

func (e *LogEmitter) Emit(ev Event) {
	e.log.Info(ev.Name(), zap.Any("event", ev))
}

// Recorder captures events for assertions in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a snapshot of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Last returns the most recent event with the given name, or nil.
func (r *Recorder) Last(name string) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Name() == name {
			return r.events[i]
		}
	}
	return nil
}

// Count returns how many recorded events carry the given name.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Name() == name {
			n++
		}
	}
	return n
}

// Tee fans out one event stream to several emitters (log + websocket hub in
// the node binary).
type Tee []Emitter

func (t Tee) Emit(ev Event) {
	for _, e := range t {
		e.Emit(ev)
	}
}
