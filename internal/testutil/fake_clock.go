package testutil

import (
	"sync"
	"time"
)

type timer struct {
	deadline time.Time
	ch       chan time.Time
}

// FakeClock only moves when told to. Timers created by After fire when Add
// or Set moves time past their deadline.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*timer
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &timer{
		deadline: c.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	if d <= 0 {
		t.ch <- c.now
		return t.ch
	}
	c.timers = append(c.timers, t)
	return t.ch
}

func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// Add advances fake time and fires timers whose deadlines have passed.
func (c *FakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceTo(c.now.Add(d))
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceTo(t.UTC())
}

func (c *FakeClock) advanceTo(now time.Time) {
	c.now = now
	var remaining []*timer
	for _, t := range c.timers {
		if !t.deadline.After(now) {
			t.ch <- now
		} else {
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
}
