// Package session hosts long-lived viewer panels for the HTTP server.
//
// A [Session] owns one [viewer.Panel] positioned on a step of a recording.
// A panel is single threaded, so each session runs one goroutine that drains
// a queue of operations; [Session.Do] enqueues a closure and waits for its
// result. Requests for different sessions run in parallel, requests for the
// same session run one after another in arrival order.
//
// # Usage
//
//	sess, err := session.New(tl, panel, session.Options{TTL: 30 * time.Minute})
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	err = sess.Do(ctx, "step", func(st *session.State) error {
//	    return st.Goto(3)
//	})
//
// Sessions expire after TTL without a call to Do; a [Store] drops expired
// sessions on Get and Cleanup.
package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/heapview/pkg/diff"
	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/observability"
	"github.com/matzehuels/heapview/pkg/timeline"
	"github.com/matzehuels/heapview/pkg/viewer"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 30 * time.Minute

// queueSize bounds the operations waiting for a session's goroutine.
const queueSize = 16

// Options configures a session.
type Options struct {
	TTL    time.Duration // idle lifetime; 0 means DefaultTTL
	Logger *log.Logger
}

// State is what an operation sees. It is only valid inside the closure
// passed to [Session.Do].
type State struct {
	Panel    *viewer.Panel
	Timeline *timeline.Timeline
	Step     int
	Stats    diff.Stats
}

// Goto shows step i diffed against step i-1.
func (st *State) Goto(i int) error {
	cur, prev, err := st.Timeline.Pair(i)
	if err != nil {
		return err
	}
	stats, err := st.Panel.SetStep(cur, prev)
	if err != nil {
		return err
	}
	st.Step, st.Stats = i, stats
	return nil
}

// Session is one viewer panel and the goroutine that owns it.
type Session struct {
	ID        string
	CreatedAt time.Time

	ttl    time.Duration
	logger *log.Logger

	mu       sync.Mutex
	lastUsed time.Time

	state  State
	events chan event
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

type event struct {
	name  string
	fn    func(*State) error
	reply chan error
}

// New positions panel on the first step of tl and starts the session's
// goroutine. Call Close to stop it.
func New(tl *timeline.Timeline, panel *viewer.Panel, opts Options) (*Session, error) {
	if tl.Len() == 0 {
		return nil, errors.New(errors.ErrCodeNotFound, "recording has no snapshots")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ttl:       opts.TTL,
		logger:    logger,
		lastUsed:  now,
		state:     State{Panel: panel, Timeline: tl},
		events:    make(chan event, queueSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if err := s.state.Goto(0); err != nil {
		return nil, err
	}
	s.logger = logger.With("session", s.ID)
	go s.run()
	return s, nil
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case ev := <-s.events:
			start := time.Now()
			err := ev.fn(&s.state)
			observability.Server().OnSessionEvent(context.Background(), s.ID, ev.name, err)
			s.logger.Debug("event", "name", ev.name, "step", s.state.Step, "duration", time.Since(start), "err", err)
			ev.reply <- err
		case <-s.quit:
			return
		}
	}
}

// Do runs fn on the session's goroutine and returns its error. name labels
// the operation in logs and hooks. If ctx ends first Do returns ctx.Err();
// an operation already queued still runs.
func (s *Session) Do(ctx context.Context, name string, fn func(*State) error) error {
	ev := event{name: name, fn: fn, reply: make(chan error, 1)}
	select {
	case s.events <- ev:
	case <-s.done:
		return s.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
	s.touch()

	select {
	case err := <-ev.reply:
		return err
	case <-s.done:
		return s.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) closedErr() error {
	return errors.New(errors.ErrCodeNotFound, "session %s is closed", s.ID)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// ExpiresAt is when the session expires unless used again.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed.Add(s.ttl)
}

// IsExpired reports whether the session has been idle longer than its TTL.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt())
}

// Close stops the session's goroutine and waits for it. Operations queued
// behind the running one fail. Close is idempotent.
func (s *Session) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}
