// Package notify carries user-visible notifications ("toasts") produced by
// editing actions.
package notify

import (
	"sync"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Notifier interface {
	Notify(n Notification)
}

func Success(msg string) Notification {
	return Notification{Level: LevelSuccess, Message: msg}
}

func Error(msg string, err error) Notification {
	n := Notification{Level: LevelError, Message: msg}
	if err != nil {
		n.Detail = err.Error()
	}
	return n
}

// Recorder buffers notifications until they are drained into a response.
type Recorder struct {
	mu   sync.Mutex
	list []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, n)
}

// Drain returns and clears the buffered notifications.
func (r *Recorder) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.list
	r.list = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (l LogNotifier) Notify(n Notification) {
	ev := l.Logger.Info()
	if n.Level == LevelError {
		ev = l.Logger.Warn()
	}
	ev.Str("notification", string(n.Level)).Str("detail", n.Detail).Msg(n.Message)
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, nn := range m {
		nn.Notify(n)
	}
}
