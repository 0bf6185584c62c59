// Package realtimetest provides an in-memory realtime.Client for tests.
package realtimetest

import (
	"encoding/json"
	"errors"
	"sync"
)

var ErrClosed = errors.New("recorder closed")

// Frame is one recorded send, with the payload round-tripped through JSON
// so assertions see what a websocket client would.
type Frame struct {
	Event   string
	Payload json.RawMessage
}

// Decode unmarshals the payload into v.
func (f Frame) Decode(v interface{}) error {
	return json.Unmarshal(f.Payload, v)
}

type Recorder struct {
	id     string
	userID string

	mu     sync.Mutex
	frames []Frame
	closed bool
	fail   error
}

func NewRecorder(id, userID string) *Recorder {
	return &Recorder{id: id, userID: userID}
}

func (r *Recorder) ID() string     { return r.id }
func (r *Recorder) UserID() string { return r.userID }

func (r *Recorder) Send(event string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.fail != nil {
		return r.fail
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.frames = append(r.frames, Frame{Event: event, Payload: data})
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// FailWith makes every later Send return err; nil restores delivery.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

// Events lists the event names received, in order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := make([]string, len(r.frames))
	for i, f := range r.frames {
		events[i] = f.Event
	}
	return events
}

// Last returns the most recent frame with the given event name.
func (r *Recorder) Last(event string) (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.frames) - 1; i >= 0; i-- {
		if r.frames[i].Event == event {
			return r.frames[i], true
		}
	}
	return Frame{}, false
}

func (r *Recorder) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, f := range r.frames {
		if f.Event == event {
			n++
		}
	}
	return n
}
