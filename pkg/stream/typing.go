package stream

import (
	"sort"

	"github.com/go-go-golems/helpdesk/pkg/clock"
	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
)

type typer struct {
	signal helpdesk.TypingSignal
	timer  *clock.Timer
	gen    uint64
}

// NoteTyping records a remote typing signal. Each signal restarts the
// user's expiry timer. Signals from selfID are ignored.
func (s *Stream) NoteTyping(sig helpdesk.TypingSignal, selfID string) bool {
	if sig.UserID == "" || sig.UserID == selfID {
		return false
	}
	s.mu.Lock()
	t, ok := s.typers[sig.UserID]
	if !ok {
		t = &typer{}
		s.typers[sig.UserID] = t
	}
	t.timer.Stop()
	t.signal = sig
	t.gen++
	gen, userID := t.gen, sig.UserID
	t.timer = s.clock.AfterFunc(s.typingExpiry, func() { s.expireTyper(userID, gen) })
	s.mu.Unlock()

	s.changed()
	return true
}

func (s *Stream) NoteStopTyping(sig helpdesk.TypingSignal) bool {
	s.mu.Lock()
	t, ok := s.typers[sig.UserID]
	if ok {
		t.timer.Stop()
		delete(s.typers, sig.UserID)
	}
	s.mu.Unlock()
	if ok {
		s.changed()
	}
	return ok
}

func (s *Stream) expireTyper(userID string, gen uint64) {
	s.mu.Lock()
	t, ok := s.typers[userID]
	removed := ok && t.gen == gen
	if removed {
		delete(s.typers, userID)
	}
	s.mu.Unlock()
	if removed {
		s.changed()
	}
}

// Typers lists users typing in conversationID, or everywhere when the id
// is empty, ordered by name.
func (s *Stream) Typers(conversationID string) []helpdesk.TypingSignal {
	s.mu.Lock()
	out := make([]helpdesk.TypingSignal, 0, len(s.typers))
	for _, t := range s.typers {
		if conversationID == "" || t.signal.ConversationID == "" || t.signal.ConversationID == conversationID {
			out = append(out, t.signal)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// EmitTypingDebounced announces local typing and schedules a stop_typing
// once no keystroke arrives for the idle window.
func (s *Stream) EmitTypingDebounced(conversationID string) {
	if conversationID == "" {
		return
	}
	s.emitter.EmitTyping(conversationID)

	s.mu.Lock()
	s.debounce.Stop()
	s.debounceGen++
	gen := s.debounceGen
	s.debounce = s.clock.AfterFunc(s.typingIdle, func() { s.fireStopTyping(conversationID, gen) })
	s.mu.Unlock()
}

func (s *Stream) fireStopTyping(conversationID string, gen uint64) {
	s.mu.Lock()
	if gen != s.debounceGen {
		s.mu.Unlock()
		return
	}
	s.debounce = nil
	s.mu.Unlock()
	s.emitter.EmitStopTyping(conversationID)
}

func (s *Stream) cancelDebounceLocked() {
	s.debounce.Stop()
	s.debounce = nil
	s.debounceGen++
}
