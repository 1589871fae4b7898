package stream

import (
	"sort"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
)

// ReceiveMessage appends a pushed message when it belongs to the selected
// conversation and is not already present. It reports whether the history
// changed.
func (s *Stream) ReceiveMessage(msg helpdesk.Message, selectedID string) bool {
	if msg.ConversationID == "" || msg.ConversationID != selectedID {
		return false
	}
	s.mu.Lock()
	list := s.messages[msg.ConversationID]
	if msg.ID != "" {
		for _, m := range list {
			if m.ID == msg.ID {
				s.mu.Unlock()
				return false
			}
		}
	}
	idx := sort.Search(len(list), func(i int) bool { return list[i].SentAt.After(msg.SentAt) })
	list = append(list, helpdesk.Message{})
	copy(list[idx+1:], list[idx:])
	list[idx] = msg
	s.messages[msg.ConversationID] = list
	s.mu.Unlock()

	s.changed()
	return true
}

// ReplaceHistory installs a fetched history, ordered by send time with
// duplicate ids removed. Messages already received for the conversation
// that the snapshot lacks are kept, so a push that raced the fetch is not
// lost.
func (s *Stream) ReplaceHistory(conversationID string, msgs []helpdesk.Message) {
	seen := make(map[string]struct{}, len(msgs))
	out := make([]helpdesk.Message, 0, len(msgs))
	add := func(m helpdesk.Message) {
		if m.ID != "" {
			if _, dup := seen[m.ID]; dup {
				return
			}
			seen[m.ID] = struct{}{}
		}
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		out = append(out, m)
	}
	for _, m := range msgs {
		add(m)
	}

	s.mu.Lock()
	for _, m := range s.messages[conversationID] {
		if m.ID != "" {
			add(m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	s.messages[conversationID] = out
	s.mu.Unlock()
	s.changed()
}

func (s *Stream) Messages(conversationID string) []helpdesk.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]helpdesk.Message(nil), s.messages[conversationID]...)
}

// Forget drops the cached history of a conversation.
func (s *Stream) Forget(conversationID string) {
	s.mu.Lock()
	_, ok := s.messages[conversationID]
	delete(s.messages, conversationID)
	s.mu.Unlock()
	if ok {
		s.changed()
	}
}
