package settlement

import (
	"context"
	"time"

	"github.com/graphbank/backoffice/internal/logging"
)

// Runner invokes the processor on a fixed interval. It is owned as a
// background goroutine by the transaction service binary; the /settlements/run
// endpoint can still trigger extra passes on demand.
type Runner struct {
	processor *Processor
	interval  time.Duration
	log       *logging.Logger
}

func NewRunner(processor *Processor, interval time.Duration, log *logging.Logger) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{processor: processor, interval: interval, log: log}
}

// Run blocks until ctx is cancelled, running one settlement pass per tick.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.WithService().WithField("interval", r.interval.String()).Info("settlement runner started")
	for {
		select {
		case <-ctx.Done():
			r.log.WithService().Info("settlement runner stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.processor.ProcessPending(ctx); err != nil {
				r.log.WithService().Errorf("settlement pass failed: %v", err)
			}
		}
	}
}
