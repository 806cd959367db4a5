package hardware

import (
	"sync"
	"time"

	"github.com/hearth-home/hearth/pkg/models"
	"go.uber.org/zap"
)

// DefaultTickInterval is the shared hub timer period.
const DefaultTickInterval = 15 * time.Second

// Timer is the shared tick source. Devices register as users; the ticker runs
// while at least one user is registered and stops at zero. Registering the
// first user fires an immediate kick tick so drivers see their first tick
// right away instead of a full period later.
type Timer struct {
	interval time.Duration
	tick     func()
	logger   *zap.Logger

	mu     sync.Mutex
	users  map[models.DeviceID]bool
	ticker *time.Ticker
	stop   chan struct{}
}

// NewTimer creates a stopped timer delivering ticks through fn.
func NewTimer(interval time.Duration, fn func(), logger *zap.Logger) *Timer {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Timer{
		interval: interval,
		tick:     fn,
		logger:   logger,
		users:    make(map[models.DeviceID]bool),
	}
}

// AddUser registers a device as a timer user. Re-adding the same device is a
// no-op.
func (t *Timer) AddUser(id models.DeviceID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.users[id] {
		return
	}
	t.users[id] = true
	if len(t.users) > 1 {
		return
	}

	t.logger.Debug("starting shared timer", zap.Duration("interval", t.interval))
	t.ticker = time.NewTicker(t.interval)
	stop := make(chan struct{})
	t.stop = stop
	go t.run(t.ticker, stop)

	// Kick tick, delivered outside the caller's stack so the caller can
	// finish releasing its own locks first.
	time.AfterFunc(0, t.tick)
}

// RemoveUser deregisters a device. The ticker stops when the last user is
// gone.
func (t *Timer) RemoveUser(id models.DeviceID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.users[id] {
		return
	}
	delete(t.users, id)
	if len(t.users) > 0 {
		return
	}

	t.logger.Debug("stopping shared timer")
	t.ticker.Stop()
	close(t.stop)
	t.ticker = nil
	t.stop = nil
}

// Running reports whether the ticker is currently active.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticker != nil
}

// Users returns the current user count.
func (t *Timer) Users() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users)
}

// Shutdown stops the ticker regardless of registered users.
func (t *Timer) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	close(t.stop)
	t.ticker = nil
	t.stop = nil
}

func (t *Timer) run(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.tick()
		}
	}
}
