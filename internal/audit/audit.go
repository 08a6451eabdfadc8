// Package audit decorates audit sinks with fire-and-forget delivery.
// Recording a security event must never fail or slow down the operation
// that produced it.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aphrodite-labs/phishguard/internal/domain"
)

const (
	defaultBuffer = 256
	writeTimeout  = 5 * time.Second
)

type event struct {
	userID  string
	action  string
	details map[string]any
	meta    domain.RequestMeta
}

// Async wraps a concrete audit sink (usually the Postgres one) behind a
// buffered channel and a single worker. Enqueueing never blocks: when the
// buffer is full, the event is dropped and the drop itself is logged.
type Async struct {
	inner  domain.AuditLogger
	logger *zap.Logger
	events chan event
	done   chan struct{}
}

// NewAsync starts the delivery worker.
func NewAsync(inner domain.AuditLogger, logger *zap.Logger) *Async {
	a := &Async{
		inner:  inner,
		logger: logger,
		events: make(chan event, defaultBuffer),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Record enqueues an audit event for background delivery.
func (a *Async) Record(_ context.Context, userID, action string, details map[string]any, meta domain.RequestMeta) {
	select {
	case a.events <- event{userID: userID, action: action, details: details, meta: meta}:
	default:
		a.logger.Warn("audit buffer full, dropping event",
			zap.String("action", action),
			zap.String("user_id", userID),
		)
	}
}

// Close drains pending events and stops the worker.
func (a *Async) Close() {
	close(a.events)
	<-a.done
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.events {
		// Detached context: the originating request may be long gone.
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		a.inner.Record(ctx, ev.userID, ev.action, ev.details, ev.meta)
		cancel()
	}
}

// Logger is an audit sink that only writes structured log lines. It backs
// tests and local runs without a database.
type Logger struct {
	logger *zap.Logger
}

// NewLogger builds a log-only sink.
func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

// Record writes the event as a structured log line.
func (l *Logger) Record(_ context.Context, userID, action string, details map[string]any, meta domain.RequestMeta) {
	l.logger.Info("audit event",
		zap.String("user_id", userID),
		zap.String("action", action),
		zap.Any("details", details),
		zap.String("ip", meta.IP),
		zap.String("user_agent", meta.UserAgent),
	)
}
