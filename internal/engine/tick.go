// Package engine provides the tick-based simulation loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/economy"
	"github.com/talgya/mini-market/internal/hub"
)

// DefaultInterval is the base tick period at speed 1.
const DefaultInterval = 500 * time.Millisecond

// pausePoll is how often a paused engine checks whether to resume.
const pausePoll = 100 * time.Millisecond

// ErrInvalidSpeed is returned for non-positive speed multipliers.
var ErrInvalidSpeed = errors.New("speed multiplier must be greater than zero")

// Store supplies the initial world snapshot. It is read once, on the
// first Start.
type Store interface {
	ListAgents(ctx context.Context) ([]*agents.Agent, error)
	ListShops(ctx context.Context) ([]*economy.Shop, error)
}

// Engine drives the simulation forward at a fixed rate.
type Engine struct {
	Sim      *Simulation
	store    Store
	interval time.Duration // Base tick interval (speed 1)

	tick atomic.Uint64 // Current tick counter (monotonic, never resets)

	mu        sync.Mutex
	speed     float64 // Multiplier: 2 = twice as fast
	running   bool
	paused    bool
	loaded    bool
	startedAt time.Time
	stop      chan struct{}
	done      chan struct{}
}

// NewEngine creates an engine around sim. A nil store starts from
// whatever sim already holds. interval <= 0 uses DefaultInterval.
func NewEngine(sim *Simulation, store Store, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		Sim:      sim,
		store:    store,
		interval: interval,
		speed:    1.0,
	}
}

// Start loads the initial snapshot and begins the loop in a new
// goroutine. Calling Start while running is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	if !e.loaded && e.store != nil {
		ag, err := e.store.ListAgents(ctx)
		if err != nil {
			return fmt.Errorf("load agents: %w", err)
		}
		shops, err := e.store.ListShops(ctx)
		if err != nil {
			return fmt.Errorf("load shops: %w", err)
		}
		e.Sim.Load(ag, shops)
		slog.Info("world loaded", "agents", len(ag), "shops", len(shops))
	}
	e.loaded = true

	// A loop stopped just before this Start may still be finishing its
	// last tick; the new loop waits for it so ticks never overlap.
	prev := e.done

	e.running = true
	e.startedAt = time.Now()
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(ctx, prev, e.stop, e.done)
	return nil
}

// Stop halts the loop. A tick in progress completes; no further tick
// starts.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked(e.stop)
}

// stopLoop stops the loop that owns stop, and nothing else. A loop whose
// context is cancelled after a restart must not stop its successor.
func (e *Engine) stopLoop(stop chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked(stop)
}

func (e *Engine) stopLocked(stop chan struct{}) {
	if !e.running || e.stop != stop {
		return
	}
	e.running = false
	close(e.stop)
}

// Wait blocks until the loop goroutine has exited.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// SetSpeed changes the speed multiplier. The new period applies from the
// next inter-tick wait.
func (e *Engine) SetSpeed(multiplier float64) error {
	if !(multiplier > 0) || math.IsInf(multiplier, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, multiplier)
	}
	e.mu.Lock()
	e.speed = multiplier
	e.mu.Unlock()

	slog.Info("speed changed", "speed", multiplier, "period", e.Period())
	return nil
}

// Speed returns the current multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// Period returns the effective tick period.
func (e *Engine) Period() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(float64(e.interval) / e.speed)
}

// Pause suspends ticking without stopping the loop.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	slog.Info("simulation paused", "tick", e.CurrentTick())
}

// Resume continues a paused loop.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	slog.Info("simulation resumed", "tick", e.CurrentTick())
}

// Paused reports whether ticking is suspended.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Uptime returns how long the loop has been running, or zero.
func (e *Engine) Uptime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return 0
	}
	return time.Since(e.startedAt)
}

// CurrentTick returns the most recently started tick number.
func (e *Engine) CurrentTick() uint64 {
	return e.tick.Load()
}

func (e *Engine) run(ctx context.Context, prev <-chan struct{}, stop, done chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}
	slog.Info("simulation engine started", "tick", e.CurrentTick(), "speed", e.Speed())

	for {
		select {
		case <-stop:
			slog.Info("simulation engine stopped", "tick", e.CurrentTick())
			return
		case <-ctx.Done():
			e.stopLoop(stop)
			slog.Info("simulation engine stopped", "tick", e.CurrentTick(), "reason", ctx.Err())
			return
		default:
		}

		if e.Paused() {
			wait(ctx, stop, pausePoll)
			continue
		}

		start := time.Now()
		e.step()

		// Sleep for the remainder of the period so overruns shrink the
		// next wait instead of accumulating.
		remaining := e.Period() - time.Since(start)
		wait(ctx, stop, remaining)
	}
}

// step advances the simulation by one tick. Failures are contained here.
func (e *Engine) step() {
	tick := e.tick.Add(1)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("tick panicked", "tick", tick, "panic", r)
			e.Sim.recordFailure()
		}
	}()

	if err := e.Sim.Step(tick); err != nil {
		slog.Error("tick failed", "tick", tick, "error", err)
		e.Sim.recordFailure()
	}
}

// wait sleeps for d or until stop/ctx fires.
func wait(ctx context.Context, stop <-chan struct{}, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-stop:
	case <-ctx.Done():
	}
}

// AddShop inserts a shop into the live world and announces it.
// The caller persists the shop first.
func (e *Engine) AddShop(shop *economy.Shop) error {
	return e.Sim.AddShop(shop)
}

// AddClient registers an observer connection.
func (e *Engine) AddClient(c hub.Conn) error {
	return e.Sim.AddClient(c)
}

// RemoveClient unregisters an observer connection.
func (e *Engine) RemoveClient(c hub.Conn) {
	e.Sim.RemoveClient(c)
}
