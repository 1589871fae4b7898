// Package notify holds user-facing notifications raised by realtime events
// and the transient success/error banner shown after mutations.
package notify

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelMessage Level = "message"
)

type Notification struct {
	Level          Level
	Title          string
	Description    string
	Duration       time.Duration
	ConversationID string
}

type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Nop discards notifications.
var Nop Notifier = NotifierFunc(func(Notification) {})

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: log.With().Str("component", "notify").Logger()}
}

func (l *LogNotifier) Notify(n Notification) {
	ev := l.logger.Info()
	if n.Level == LevelWarning || n.Level == LevelError {
		ev = l.logger.Warn()
	}
	ev.Str("level_hint", string(n.Level)).
		Str("title", n.Title).
		Str("conversation_id", n.ConversationID).
		Dur("duration", n.Duration).
		Msg(n.Description)
}

// ChanNotifier forwards notifications to a buffered channel and never
// blocks; notifications that do not fit are counted and dropped.
type ChanNotifier struct {
	ch      chan Notification
	dropped atomic.Int64
}

func NewChanNotifier(size int) *ChanNotifier {
	if size <= 0 {
		size = 16
	}
	return &ChanNotifier{ch: make(chan Notification, size)}
}

func (c *ChanNotifier) Notify(n Notification) {
	select {
	case c.ch <- n:
	default:
		c.dropped.Add(1)
	}
}

func (c *ChanNotifier) C() <-chan Notification { return c.ch }

func (c *ChanNotifier) Dropped() int64 { return c.dropped.Load() }

// Multi fans a notification out to every non-nil notifier.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, x := range m {
		if x != nil {
			x.Notify(n)
		}
	}
}
