// Package feed provides the snapshot subscription machinery shared by the
// storage backends: a re-listing subscription, an in-process change hub
// and document ordering/merging helpers.
package feed

import (
	"context"
	"sync"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
)

// Lister loads the current contents of a watched collection.
type Lister func(ctx context.Context) ([]*models.Document, error)

// Subscription delivers full collection snapshots. Each Trigger causes one
// re-list; triggers that arrive while a list is in flight are coalesced,
// so a newer snapshot is never followed by an older one.
type Subscription struct {
	list    Lister
	logger  *common.Logger
	out     chan []*models.Document
	trigger chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	err     error
	onClose []func()
	closed  bool
}

// NewSubscription starts the delivery goroutine. The first snapshot is
// listed immediately.
func NewSubscription(ctx context.Context, list Lister, logger *common.Logger) *Subscription {
	s, runCtx := newSubscription(ctx, list, logger)
	go s.run(runCtx)
	return s
}

// newSubscription builds a subscription with its first list pending but
// does not start delivery.
func newSubscription(ctx context.Context, list Lister, logger *common.Logger) (*Subscription, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		list:    list,
		logger:  logger,
		out:     make(chan []*models.Document, 1),
		trigger: make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.trigger <- struct{}{}
	return s, ctx
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
		}

		docs, err := s.list(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Msg("Snapshot list failed")
			s.Fail(err)
			return
		}

		// Replace an undelivered snapshot rather than queueing behind it.
		select {
		case <-s.out:
		default:
		}
		select {
		case s.out <- docs:
		case <-ctx.Done():
			return
		}
	}
}

// Trigger schedules a re-list. It never blocks.
func (s *Subscription) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// OnClose registers a hook run once when the subscription closes.
func (s *Subscription) OnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// Fail ends the subscription with err.
func (s *Subscription) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.cancel()
}

// C returns the snapshot channel.
func (s *Subscription) C() <-chan []*models.Document {
	return s.out
}

// Err reports why the subscription ended.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close stops delivery and waits for the goroutine to exit. Safe to call
// more than once.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	hooks := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	s.cancel()
	<-s.done
	for _, fn := range hooks {
		fn()
	}
	return nil
}

var _ interfaces.Subscription = (*Subscription)(nil)
