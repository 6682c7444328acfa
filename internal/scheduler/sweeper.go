// Package scheduler runs the background jobs. There is exactly one:
// cleanup-old-tenants, which reclaims tenants past their TTL at the top of
// every hour.
package scheduler

import (
	"time"

	"github.com/glideapps/fake-discord/internal/store"
	"github.com/glideapps/fake-discord/pkg/config"
	"github.com/glideapps/fake-discord/pkg/logger"
	"github.com/glideapps/fake-discord/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CleanupJobName identifies the sweeper job.
const CleanupJobName = "cleanup-old-tenants"

// CleanupSchedule fires at the top of every hour.
const CleanupSchedule = "0 * * * *"

// SweepSummary is the observable result of one sweeper run.
type SweepSummary struct {
	Deleted int  `json:"deleted"`
	Checked bool `json:"checked"`
}

// RunCleanup deletes every tenant older than ttl using the same cascade as
// an explicit tenant delete. Safe to run concurrently with request traffic.
func RunCleanup(db *gorm.DB, ttl time.Duration) (SweepSummary, error) {
	defer prometheus.TrackDBOperation("sweep")(time.Now())

	deleted, err := store.SweepExpiredTenants(db, ttl, time.Now().UTC())
	if err != nil {
		return SweepSummary{Deleted: deleted, Checked: true}, err
	}
	if deleted > 0 {
		prometheus.RecordTenantsSwept(deleted)
		prometheus.RecordTenantOperation("sweep")
	}
	return SweepSummary{Deleted: deleted, Checked: true}, nil
}

// Start registers the sweeper on an hourly cron and starts the scheduler.
// The returned cron can be stopped on shutdown.
func Start(db *gorm.DB, cfg *config.Config) (*cron.Cron, error) {
	log := logger.GetLogger()

	c := cron.New()
	_, err := c.AddFunc(CleanupSchedule, func() {
		summary, err := RunCleanup(db, cfg.Tenant.TTL)
		if err != nil {
			log.Error("Sweeper run failed",
				zap.String("job", CleanupJobName),
				zap.Int("deleted", summary.Deleted),
				zap.Error(err))
			return
		}
		log.Info("Sweeper run completed",
			zap.String("job", CleanupJobName),
			zap.Int("deleted", summary.Deleted),
			zap.Bool("checked", summary.Checked))
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	log.Info("Scheduler started",
		zap.String("job", CleanupJobName),
		zap.String("schedule", CleanupSchedule),
		zap.Duration("tenant_ttl", cfg.Tenant.TTL))
	return c, nil
}
