package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// AsyncOptions configures an AsyncSink
type AsyncOptions struct {
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger

	// OnFailure is called for an entry that could not be delivered after all
	// retries
	OnFailure func(entry *types.AuditEntry, err error)
}

// AsyncSink delivers entries to another sink from a background goroutine.
// Append blocks when the buffer is full rather than dropping, failed
// deliveries are retried, and Close drains everything queued.
type AsyncSink struct {
	next    Sink
	opts    AsyncOptions
	logger  *zap.Logger
	queue   chan *types.AuditEntry
	mu      sync.RWMutex
	closed  bool
	drained chan struct{}
}

// NewAsyncSink starts the delivery goroutine
func NewAsyncSink(next Sink, opts AsyncOptions) *AsyncSink {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &AsyncSink{
		next:    next,
		opts:    opts,
		logger:  opts.Logger,
		queue:   make(chan *types.AuditEntry, opts.BufferSize),
		drained: make(chan struct{}),
	}
	go s.run()
	return s
}

// Append enqueues a copy of the entry. It fails only when the sink is closed
// or ctx ends while waiting for buffer space.
func (s *AsyncSink) Append(ctx context.Context, entry *types.AuditEntry) error {
	assignID(entry)
	cp := copyEntry(entry)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("%w: sink closed", types.ErrAuditWrite)
	}

	select {
	case s.queue <- cp:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", types.ErrAuditWrite, ctx.Err())
	}
}

func (s *AsyncSink) run() {
	defer close(s.drained)
	for entry := range s.queue {
		s.deliver(entry)
	}
}

func (s *AsyncSink) deliver(entry *types.AuditEntry) {
	var err error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(s.opts.RetryDelay * time.Duration(attempt))
		}
		if err = s.next.Append(context.Background(), entry); err == nil {
			return
		}
		s.logger.Warn("Audit delivery failed",
			zap.String("entry_id", entry.ID),
			zap.String("action", string(entry.Action)),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	s.logger.Error("Audit entry could not be delivered",
		zap.String("entry_id", entry.ID),
		zap.String("action", string(entry.Action)),
		zap.String("actor", entry.Actor),
		zap.Error(err),
	)
	if s.opts.OnFailure != nil {
		s.opts.OnFailure(entry, err)
	}
}

// Pending returns the number of queued entries not yet picked up
func (s *AsyncSink) Pending() int {
	return len(s.queue)
}

// Close stops accepting entries, waits until every queued entry has been
// delivered or given up on, then closes the inner sink
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.drained
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.drained
	return Close(s.next)
}
