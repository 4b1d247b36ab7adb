package voidbots

import (
	"context"
	"sync"
	"time"
)

// AutopostState is the state of the stats task.
type AutopostState int

const (
	AutopostIdle AutopostState = iota
	AutopostArmed
	AutopostPosting
	AutopostPosted
	AutopostFailed
	AutopostStopped
)

func (s AutopostState) String() string {
	switch s {
	case AutopostIdle:
		return "idle"
	case AutopostArmed:
		return "armed"
	case AutopostPosting:
		return "posting"
	case AutopostPosted:
		return "posted"
	case AutopostFailed:
		return "failed"
	case AutopostStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type tickerFunc func(d time.Duration) (<-chan time.Time, func())

func newTimeTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Autoposter posts stats once when started and then on every interval tick
// until stopped. A failed attempt never halts later ones.
//
// Attempts run one at a time on the task goroutine. The ticker holds at most
// one tick that lands while an attempt is in flight, so a slow attempt can be
// followed right away by the next one; further ticks are dropped.
type Autoposter struct {
	interval  time.Duration
	post      func(ctx context.Context) error
	newTicker tickerFunc

	onPosted func()
	onFailed func(error)

	mu        sync.Mutex
	state     AutopostState
	attempts  int
	lastPost  time.Time
	lastError time.Time
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}
}

func newAutoposter(interval time.Duration, post func(ctx context.Context) error, ticker tickerFunc) *Autoposter {
	if ticker == nil {
		ticker = newTimeTicker
	}
	return &Autoposter{
		interval:  interval,
		post:      post,
		newTicker: ticker,
	}
}

// Start arms the task and makes the first attempt right away. It reports
// false when the task was already started or has been stopped.
func (a *Autoposter) Start() bool {
	a.mu.Lock()
	if a.state != AutopostIdle {
		a.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	ticks, stopTicker := a.newTicker(a.interval)
	a.state = AutopostArmed
	a.cancel = cancel
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	go a.run(ctx, ticks, stopTicker, done)
	return true
}

// Stop cancels the task and waits for it to exit. It is safe to call more
// than once, before Start, and from a posted or error handler. It does not
// wait for a handler that is still running.
func (a *Autoposter) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	done := a.done
	a.cancel = nil
	a.state = AutopostStopped
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (a *Autoposter) run(ctx context.Context, ticks <-chan time.Time, stopTicker func(), done chan struct{}) {
	defer close(done)
	defer stopTicker()

	a.attempt(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			a.attempt(ctx)
		}
	}
}

func (a *Autoposter) attempt(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	a.setState(AutopostPosting)

	err := a.post(ctx)
	if ctx.Err() != nil {
		return
	}

	a.mu.Lock()
	a.attempts++
	now := time.Now().UTC()
	next := AutopostPosted
	if err != nil {
		next = AutopostFailed
		a.lastError = now
		a.lastErr = err
	} else {
		a.lastPost = now
	}
	if a.state != AutopostStopped {
		a.state = next
	}
	a.mu.Unlock()

	if err != nil {
		if a.onFailed != nil {
			notify(ctx, func() { a.onFailed(err) })
		}
		return
	}
	if a.onPosted != nil {
		notify(ctx, a.onPosted)
	}
}

// notify runs fn on its own goroutine and waits for it unless ctx ends first,
// so a handler can stop the task it is reporting on.
func notify(ctx context.Context, fn func()) {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		fn()
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}
}

func (a *Autoposter) setState(state AutopostState) {
	a.mu.Lock()
	if a.state != AutopostStopped {
		a.state = state
	}
	a.mu.Unlock()
}

// State returns the current state.
func (a *Autoposter) State() AutopostState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Attempts returns how many attempts have completed.
func (a *Autoposter) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

// LastPost reports the last time stats were posted successfully.
func (a *Autoposter) LastPost() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastPost
}

// LastError reports the last failed attempt's time and cause.
func (a *Autoposter) LastError() (time.Time, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastError, a.lastErr
}
