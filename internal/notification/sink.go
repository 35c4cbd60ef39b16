// Package notification delivers user-facing notices.
//
// Notices are fire-and-forget: callers never inspect a result. Within an
// HTTP request they are collected and rendered in the response; every
// notice is also logged.
package notification

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Level is the notice severity shown to the user.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Notice is one user-facing message.
type Notice struct {
	Message string `json:"message"`
	Level   Level  `json:"level"`
}

// Sink receives notices.
type Sink interface {
	Notify(ctx context.Context, n Notice)
}

// Collector buffers notices for one request.
type Collector struct {
	mu      sync.Mutex
	notices []Notice
}

func (c *Collector) Notify(_ context.Context, n Notice) {
	c.mu.Lock()
	c.notices = append(c.notices, n)
	c.mu.Unlock()
}

// Notices returns the collected notices in arrival order.
func (c *Collector) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice(nil), c.notices...)
}

type collectorKey struct{}

// WithCollector attaches a fresh Collector to ctx.
func WithCollector(ctx context.Context) (context.Context, *Collector) {
	c := &Collector{}
	return context.WithValue(ctx, collectorKey{}, c), c
}

// CollectorFrom returns the Collector attached to ctx, if any.
func CollectorFrom(ctx context.Context) *Collector {
	c, _ := ctx.Value(collectorKey{}).(*Collector)
	return c
}

// ContextSink forwards notices to the Collector carried by ctx.
// Without one the notice is dropped.
type ContextSink struct{}

func (ContextSink) Notify(ctx context.Context, n Notice) {
	if c := CollectorFrom(ctx); c != nil {
		c.Notify(ctx, n)
	}
}

// LogSink writes notices to a zap logger.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(l *zap.Logger) *LogSink {
	return &LogSink{log: l}
}

func (s *LogSink) Notify(_ context.Context, n Notice) {
	if n.Level == LevelError {
		s.log.Warn("User notice", zap.String("level", string(n.Level)), zap.String("message", n.Message))
		return
	}
	s.log.Debug("User notice", zap.String("level", string(n.Level)), zap.String("message", n.Message))
}

// Fanout delivers each notice to every sink.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, n Notice) {
	for _, s := range f {
		s.Notify(ctx, n)
	}
}

// Discard drops every notice.
type Discard struct{}

func (Discard) Notify(context.Context, Notice) {}
