package daemon

import (
	"sync"
	"time"
)

// Lifecycle shuts the daemon down after a period without requests.
// A non-positive timeout disables the idle shutdown.
type Lifecycle struct {
	mu      sync.Mutex
	timer   *time.Timer
	started time.Time
	last    time.Time
	timeout time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewLifecycle starts the idle timer.
func NewLifecycle(timeout time.Duration) *Lifecycle {
	now := time.Now()
	l := &Lifecycle{
		started: now,
		last:    now,
		timeout: timeout,
		done:    make(chan struct{}),
	}
	if timeout > 0 {
		l.timer = time.AfterFunc(timeout, l.stop)
	}
	return l
}

// Touch records activity and restarts the idle timer.
func (l *Lifecycle) Touch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = time.Now()
	if l.timer != nil {
		l.timer.Reset(l.timeout)
	}
}

// IdleRemaining returns the time left until the idle shutdown.
func (l *Lifecycle) IdleRemaining() time.Duration {
	if l.timeout <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return max(l.timeout-time.Since(l.last), 0)
}

// Uptime returns how long the daemon has been running.
func (l *Lifecycle) Uptime() time.Duration {
	return time.Since(l.started)
}

// LastActivity returns the time of the last request.
func (l *Lifecycle) LastActivity() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Done is closed once shutdown has been triggered.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

// Shutdown stops the timer and triggers shutdown. It is idempotent.
func (l *Lifecycle) Shutdown() {
	if l.timer != nil {
		l.timer.Stop()
	}
	l.stop()
}

func (l *Lifecycle) stop() {
	l.once.Do(func() { close(l.done) })
}
