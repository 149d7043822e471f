package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nexusmarket/marketplace/internal/pkg/logging"
)

// Worker drives the reconciliation service on a fixed cadence. A pass that
// returns an error doubles the delay up to maxBackoff; a clean pass resets
// it. Multiple workers may run against the same repositories: the charge
// compare-and-set keeps concurrent polls from double-settling.
type Worker struct {
	svc        *Service
	interval   time.Duration
	maxBackoff time.Duration
	cycles     prometheus.Counter // reconcile_cycles_total

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewWorker(svc *Service, interval, maxBackoff time.Duration, cycles prometheus.Counter) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxBackoff < interval {
		maxBackoff = interval
	}
	return &Worker{
		svc:        svc,
		interval:   interval,
		maxBackoff: maxBackoff,
		cycles:     cycles,
		done:       make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		bg, cancel := context.WithCancel(ctx)
		w.cancel = cancel
		go w.loop(bg)
		logging.FromContext(ctx).Info("reconcile_worker_started",
			zap.Duration("interval", w.interval),
		)
	})
}

func (w *Worker) Stop(ctx context.Context) {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		select {
		case <-w.done:
		case <-ctx.Done():
		}
		logging.FromContext(ctx).Info("reconcile_worker_stopped")
	})
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	delay := w.interval
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if w.cycles != nil {
			w.cycles.Inc()
		}

		if err := w.svc.ReconcileOutstanding(ctx); err != nil {
			logging.FromContext(ctx).Warn("reconcile_pass_failed", zap.Error(err))
			delay = min(delay*2, w.maxBackoff)
		} else {
			delay = w.interval
		}

		timer.Reset(delay)
	}
}
