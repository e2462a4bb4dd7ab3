// Package timer drives forced submission of timed attempts.
package timer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/metrics"
)

// Submitter is the part of the attempt engine the controller drives.
type Submitter interface {
	AutoSubmit(ctx context.Context, attemptID string) (exam.Attempt, error)
	OpenTimedAttempts(ctx context.Context) ([]exam.Attempt, error)
}

// Controller keeps one countdown per open timed attempt and, on every tick,
// auto-submits those whose deadline has passed. A countdown only goes away
// when the attempt leaves in_progress.
type Controller struct {
	mu        sync.Mutex
	deadlines map[string]time.Time

	cadence   time.Duration
	now       func() time.Time
	sub       Submitter
	scheduler *gocron.Scheduler
	ticks     sync.WaitGroup
	stopped   bool
}

func New(cadence time.Duration, now func() time.Time) *Controller {
	if cadence <= 0 {
		cadence = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Controller{
		deadlines: map[string]time.Time{},
		cadence:   cadence,
		now:       now,
	}
}

// Attach sets the engine that countdowns fire into.
func (c *Controller) Attach(sub Submitter) { c.sub = sub }

func (c *Controller) Arm(attemptID string, deadline time.Time) {
	c.mu.Lock()
	c.deadlines[attemptID] = deadline
	metrics.OpenCountdowns.Set(float64(len(c.deadlines)))
	c.mu.Unlock()
}

func (c *Controller) Disarm(attemptID string) {
	c.mu.Lock()
	delete(c.deadlines, attemptID)
	metrics.OpenCountdowns.Set(float64(len(c.deadlines)))
	c.mu.Unlock()
}

// Remaining returns the time left on an armed countdown.
func (c *Controller) Remaining(attemptID string) (time.Duration, bool) {
	c.mu.Lock()
	d, ok := c.deadlines[attemptID]
	c.mu.Unlock()
	if !ok {
		return 0, false
	}
	left := d.Sub(c.now())
	if left < 0 {
		left = 0
	}
	return left, true
}

func (c *Controller) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deadlines)
}

// Rearm loads every open timed attempt from the store so deadlines survive
// a restart.
func (c *Controller) Rearm(ctx context.Context) (int, error) {
	if c.sub == nil {
		return 0, errors.New("timer: no submitter attached")
	}
	open, err := c.sub.OpenTimedAttempts(ctx)
	if err != nil {
		return 0, fmt.Errorf("load open timed attempts: %w", err)
	}
	for _, a := range open {
		if a.Deadline != nil {
			c.Arm(a.ID, *a.Deadline)
		}
	}
	return len(open), nil
}

// Tick fires every countdown that has run out and returns how many
// attempts it closed. Failures other than "already closed" keep the
// countdown armed for the next tick.
func (c *Controller) Tick(ctx context.Context) int {
	if c.sub == nil {
		return 0
	}
	now := c.now()
	c.mu.Lock()
	due := make([]string, 0)
	for id, d := range c.deadlines {
		if !now.Before(d) {
			due = append(due, id)
		}
	}
	c.mu.Unlock()
	sort.Strings(due)

	fired := 0
	for _, id := range due {
		_, err := c.sub.AutoSubmit(ctx, id)
		switch {
		case err == nil:
			fired++
			c.Disarm(id)
		case errors.Is(err, exam.ErrAttemptAlreadySubmitted), errors.Is(err, exam.ErrAttemptNotFound):
			c.Disarm(id)
		default:
			log.Printf("timer: auto-submit %s: %v", id, err)
		}
	}
	return fired
}

// Start re-arms open attempts and begins ticking in the background.
func (c *Controller) Start(ctx context.Context) error {
	n, err := c.Rearm(ctx)
	if err != nil {
		return err
	}
	log.Printf("timer: %d open timed attempts re-armed, cadence %s", n, c.cadence)

	s := gocron.NewScheduler(time.UTC)
	if _, err := s.Every(c.cadence).SingletonMode().Do(c.scheduledTick, ctx); err != nil {
		return fmt.Errorf("schedule timer tick: %w", err)
	}
	s.StartAsync()
	c.scheduler = s
	return nil
}

// scheduledTick runs one tick from the scheduler goroutine. A panic is
// logged and the countdowns are left for the next tick.
func (c *Controller) scheduledTick(ctx context.Context) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.ticks.Add(1)
	c.mu.Unlock()
	defer c.ticks.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("timer: tick panicked: %v", r)
		}
	}()
	c.Tick(ctx)
}

// Stop halts the scheduler and waits for a running tick to finish.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	c.ticks.Wait()
}
