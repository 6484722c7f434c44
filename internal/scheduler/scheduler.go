// Package scheduler runs the periodic membership reconcile.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"collegehub-backend/internal/services"
)

const reconcileTimeout = 4 * time.Minute

type Reconciler interface {
	Reconcile(ctx context.Context) (services.ReconcileReport, error)
}

// Start registers the reconcile job on schedule and starts the cron. An
// empty schedule disables it and returns a nil cron.
func Start(schedule string, reconciler Reconciler) (*cron.Cron, error) {
	if schedule == "" {
		log.Printf("[RECONCILE] schedule empty, job disabled")
		return nil, nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, func() { RunOnce(reconciler) }); err != nil {
		return nil, err
	}
	log.Printf("[RECONCILE] started schedule=%q", schedule)
	c.Start()
	return c, nil
}

func RunOnce(reconciler Reconciler) {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()
	report, err := reconciler.Reconcile(ctx)
	if err != nil {
		log.Printf("[RECONCILE] error: %v", err)
		return
	}
	log.Printf("[RECONCILE] clubsRepaired=%d studentsUpdated=%d", report.ClubsRepaired, report.StudentsUpdated)
}

// Stop waits for a running job to finish or ctx to expire.
func Stop(ctx context.Context, c *cron.Cron) {
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
