package app

import (
	"context"
	"fmt"

	"github.com/mx-space/confetti-bridge/internal/config"
	"github.com/mx-space/confetti-bridge/internal/modules/confetti/registry"
	pkgcron "github.com/mx-space/confetti-bridge/internal/pkg/cron"
	"go.uber.org/zap"
)

const jobSweepIdleControls = "sweep_idle_controls"

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, svc *registry.Service, cfg *config.AppConfig, logger *zap.Logger) error {
	cronLogger := logger.Named("CronService")
	idleTTL := cfg.Controls.IdleTTL

	interval := cfg.Controls.SweepInterval
	if interval <= 0 {
		return nil
	}

	return sched.Register(pkgcron.Job{
		Name:        jobSweepIdleControls,
		Description: "Discard controls without a mounted widget for longer than idle_ttl",
		Interval:    interval,
		Fn: func(ctx context.Context) error {
			n, err := svc.SweepIdle(ctx, idleTTL)
			if err != nil {
				cronLogger.Warn("sweep idle controls failed", zap.Error(err))
				return err
			}
			if n > 0 {
				cronLogger.Info(fmt.Sprintf("swept %d idle controls", n))
			}
			return nil
		},
	})
}
