package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EvaporationTicker fires pheromone decay on a wall-clock interval.
// Used in interactive mode, where there is no iteration loop to hang
// decay off; batch runs decay once per iteration instead.
type EvaporationTicker struct {
	env      Environment
	interval time.Duration
	rate     float64
	stop     chan struct{}
	once     sync.Once
	logger   *zap.Logger
}

// NewEvaporationTicker creates a ticker; Start launches it.
func NewEvaporationTicker(env Environment, interval time.Duration, rate float64, logger *zap.Logger) *EvaporationTicker {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if rate <= 0 || rate >= 1 {
		rate = 0.1
	}
	return &EvaporationTicker{
		env:      env,
		interval: interval,
		rate:     rate,
		stop:     make(chan struct{}),
		logger:   logger,
	}
}

// Start runs the decay loop in a goroutine until Stop is called.
func (t *EvaporationTicker) Start() {
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				pruned, err := t.env.Evaporate(ctx, t.rate)
				cancel()
				if err != nil {
					t.logger.Warn("periodic evaporation failed", zap.Error(err))
					continue
				}
				t.logger.Debug("pheromones evaporated",
					zap.Float64("rate", t.rate),
					zap.Int("pruned", pruned))
			}
		}
	}()
}

// Stop halts the ticker. Safe to call more than once.
func (t *EvaporationTicker) Stop() {
	t.once.Do(func() { close(t.stop) })
}
