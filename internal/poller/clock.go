package poller

import "time"

// Clock creates tickers. Tests substitute a FakeClock so polling can be
// driven without waiting on real timers.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of *time.Ticker the poller needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is backed by time.NewTicker.
type RealClock struct{}

// NewTicker implements Clock.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// FakeClock delivers ticks only when Tick is called. Every ticker it
// creates shares one unbuffered channel, so Tick blocks until a poll loop
// receives it.
type FakeClock struct {
	ch chan time.Time
}

// NewFakeClock returns a FakeClock with no pending ticks.
func NewFakeClock() *FakeClock {
	return &FakeClock{ch: make(chan time.Time)}
}

// NewTicker implements Clock.
func (f *FakeClock) NewTicker(time.Duration) Ticker {
	return fakeTicker{ch: f.ch}
}

// Tick delivers one tick, blocking until a poll loop accepts it.
func (f *FakeClock) Tick() {
	f.ch <- time.Now()
}

type fakeTicker struct {
	ch chan time.Time
}

func (f fakeTicker) C() <-chan time.Time { return f.ch }
func (f fakeTicker) Stop()               {}
