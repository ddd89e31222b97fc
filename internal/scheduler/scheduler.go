// Package scheduler drives mint cycles at a fixed interval. The first
// cycle runs immediately on start; later cycles fire on the interval. Ticks
// are single-flight: a tick arriving while a cycle is still running is
// skipped, never queued.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"game-token-engine/internal/observability"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	NowMs() int64
	Tick(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) NowMs() int64 { return time.Now().UnixMilli() }

func (realClock) Tick(d time.Duration) <-chan time.Time {
	return time.NewTicker(d).C
}

// MintFunc executes one mint cycle for a scheduled tick.
type MintFunc func(ctx context.Context, scheduledAt int64, sequence uint64) error

// Scheduler runs a MintFunc on a fixed interval.
type Scheduler struct {
	interval time.Duration
	mint     MintFunc
	clock    Clock
	logger   *log.Logger

	mu            sync.Mutex
	running       bool
	cyclesStarted int64
	ticksSkipped  int64
	lastMintMs    int64

	wg   sync.WaitGroup
	stop context.CancelFunc
}

// Stats is a snapshot of scheduler progress counters.
type Stats struct {
	CyclesStarted int64
	TicksSkipped  int64
	LastMintMs    int64
}

// Stats returns the current progress counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		CyclesStarted: s.cyclesStarted,
		TicksSkipped:  s.ticksSkipped,
		LastMintMs:    s.lastMintMs,
	}
}

// New creates a scheduler. A nil clock uses real time.
func New(interval time.Duration, mint MintFunc, clock Clock, logger *log.Logger) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		interval: interval,
		mint:     mint,
		clock:    clock,
		logger:   logger,
	}
}

// Start launches the scheduling loop. The first cycle runs immediately.
// Stop cancels tick delivery only; cancelling ctx aborts in-flight cycles.
func (s *Scheduler) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(context.Background())
	s.stop = cancel

	s.wg.Add(1)
	go s.run(ctx, loopCtx)
}

func (s *Scheduler) run(mintCtx, loopCtx context.Context) {
	defer s.wg.Done()

	var sequence uint64

	// Immediate first tick.
	sequence++
	s.fire(mintCtx, sequence)

	ticks := s.clock.Tick(s.interval)
	for {
		select {
		case <-mintCtx.Done():
			return
		case <-loopCtx.Done():
			return
		case <-ticks:
			sequence++
			s.fire(mintCtx, sequence)
		}
	}
}

// fire starts one cycle unless the previous one is still in flight. The
// cycle runs in its own goroutine so a slow cycle never blocks tick
// delivery; overlapping ticks are skipped instead.
func (s *Scheduler) fire(ctx context.Context, sequence uint64) {
	s.mu.Lock()
	if s.running {
		s.ticksSkipped++
		s.mu.Unlock()
		s.logger.Printf("[SCHEDULER] Tick %d skipped: previous mint cycle still running", sequence)
		observability.DefaultMetrics.MintTicksSkipped.Inc()
		return
	}
	s.running = true
	s.cyclesStarted++
	s.mu.Unlock()

	scheduledAt := s.clock.NowMs()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()

		if err := s.mint(ctx, scheduledAt, sequence); err != nil {
			s.logger.Printf("[SCHEDULER] Mint cycle %d failed: %v", sequence, err)
			return
		}
		s.mu.Lock()
		s.lastMintMs = s.clock.NowMs()
		s.mu.Unlock()
	}()
}

// Stop halts scheduling and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	if s.stop != nil {
		s.stop()
	}
	s.wg.Wait()
}
