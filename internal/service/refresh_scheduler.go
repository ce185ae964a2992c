package service

import (
	"context"
	"sync"
	"time"

	"github.com/sats-staker/internal/errors"
	"github.com/sats-staker/internal/logging"
	"github.com/sats-staker/internal/storage"
	"github.com/sats-staker/internal/wallet"
)

// ErrSchedulerClosed is returned by Watch after Close
var ErrSchedulerClosed = errors.New("refresh scheduler closed")

// Refresher produces a fresh view for a session
type Refresher interface {
	Refresh(ctx context.Context, session wallet.Session) (*StakeView, error)
}

// Update is delivered to subscribers after every refresh
type Update struct {
	Address string
	View    *StakeView // Nil only when a first load failed
	Err     error
}

// RefreshScheduler owns one refresh loop per watched address
type RefreshScheduler struct {
	refresher Refresher
	interval  time.Duration
	logger    *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	loops  map[string]*refreshLoop
	closed bool
}

type refreshLoop struct {
	key     string
	session wallet.Session
	ctx     context.Context
	cancel  context.CancelFunc
	trigger chan struct{}
	subs    map[*Subscription]struct{}
	last    *Update
}

// Subscription receives the updates for one watched address
type Subscription struct {
	ch     chan Update
	done   chan struct{}
	sched  *RefreshScheduler
	loop   *refreshLoop
	closed bool
}

// NewRefreshScheduler creates a scheduler refreshing each watched address every interval
func NewRefreshScheduler(refresher Refresher, interval time.Duration, logger *logging.Logger) *RefreshScheduler {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RefreshScheduler{
		refresher: refresher,
		interval:  interval,
		logger:    logger.WithField("component", "refresh_scheduler"),
		ctx:       ctx,
		cancel:    cancel,
		loops:     make(map[string]*refreshLoop),
	}
}

// Watch subscribes to an address. The first watcher starts the address's loop, which
// refreshes immediately and then every interval. Cancelling ctx closes the subscription.
func (s *RefreshScheduler) Watch(ctx context.Context, session wallet.Session) (*Subscription, error) {
	if !session.Connected() {
		return nil, errors.NewInvalidArgumentError("address", "address is required")
	}
	key := storage.GenerateSnapshotKey(session.Address)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSchedulerClosed
	}

	loop, ok := s.loops[key]
	if !ok {
		lctx, lcancel := context.WithCancel(s.ctx)
		loop = &refreshLoop{
			key:     key,
			session: session,
			ctx:     lctx,
			cancel:  lcancel,
			trigger: make(chan struct{}, 1),
			subs:    make(map[*Subscription]struct{}),
		}
		s.loops[key] = loop
		s.wg.Add(1)
		go s.run(loop)
		s.logger.WithField("address", session.Address).Debug("Started refresh loop")
	}

	sub := &Subscription{
		ch:    make(chan Update, 1),
		done:  make(chan struct{}),
		sched: s,
		loop:  loop,
	}
	loop.subs[sub] = struct{}{}
	if loop.last != nil {
		sub.ch <- *loop.last
	}

	if ctx != nil && ctx.Done() != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			select {
			case <-ctx.Done():
				sub.Close()
			case <-sub.done:
			}
		}()
	}

	return sub, nil
}

// Trigger requests an immediate refresh of an address
func (s *RefreshScheduler) Trigger(address string) {
	s.TriggerAfter(address, 0)
}

// TriggerAfter requests a refresh of an address after d. Without watchers the refresh
// still runs once so the cached view catches up.
func (s *RefreshScheduler) TriggerAfter(address string, d time.Duration) {
	key := storage.GenerateSnapshotKey(address)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	loop, watched := s.loops[key]
	ctx := s.ctx
	if watched {
		ctx = loop.ctx
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if d > 0 {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		if watched {
			loop.poke()
			return
		}
		if _, err := s.refresher.Refresh(ctx, wallet.NewSession(address, nil)); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).WithField("address", address).Warn("Triggered refresh failed")
		}
	}()
}

// Watching returns the number of addresses with a running loop
func (s *RefreshScheduler) Watching() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loops)
}

// Close stops every loop and closes every subscription
func (s *RefreshScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for key, loop := range s.loops {
		for sub := range loop.subs {
			sub.closeLocked()
		}
		loop.cancel()
		delete(s.loops, key)
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *RefreshScheduler) run(loop *refreshLoop) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.refresh(loop)
	for {
		select {
		case <-loop.ctx.Done():
			return
		case <-ticker.C:
			s.refresh(loop)
		case <-loop.trigger:
			s.refresh(loop)
		}
	}
}

func (s *RefreshScheduler) refresh(loop *refreshLoop) {
	view, err := s.refresher.Refresh(loop.ctx, loop.session)
	if loop.ctx.Err() != nil {
		return
	}
	s.publish(loop, Update{Address: loop.session.Address, View: view, Err: err})
}

// publish delivers an update to every live subscriber, replacing any undelivered one
func (s *RefreshScheduler) publish(loop *refreshLoop, u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loops[loop.key] != loop {
		return
	}
	loop.last = &u
	for sub := range loop.subs {
		select {
		case sub.ch <- u:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- u
		}
	}
}

func (l *refreshLoop) poke() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// Updates returns the channel of updates. It holds at most the latest undelivered
// update and is closed when the subscription ends.
func (sub *Subscription) Updates() <-chan Update {
	return sub.ch
}

// Close ends the subscription. The last subscriber stops the address's loop.
func (sub *Subscription) Close() {
	s := sub.sched
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closeLocked()

	loop := sub.loop
	delete(loop.subs, sub)
	if len(loop.subs) == 0 && s.loops[loop.key] == loop {
		loop.cancel()
		delete(s.loops, loop.key)
		s.logger.WithField("address", loop.session.Address).Debug("Stopped refresh loop")
	}
}

func (sub *Subscription) closeLocked() {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.done)
	close(sub.ch)
}
