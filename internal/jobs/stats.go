package jobs

import (
	"context"
	"time"

	"github.com/emrgen/docflow/internal/service"
	"github.com/sirupsen/logrus"
)

// StatsSource computes the dashboard summary.
type StatsSource interface {
	Stats(ctx context.Context) (*service.Stats, error)
}

var _ CronJob = (*StatsTask)(nil)

// StatsTask logs the dashboard counters.
type StatsTask struct {
	source StatsSource
	cron   string
}

func NewStatsTask(schedule string, source StatsSource) *StatsTask {
	return &StatsTask{source: source, cron: schedule}
}

func (s *StatsTask) Name() string {
	return "stats"
}

func (s *StatsTask) Schedule() string {
	return s.cron
}

func (s *StatsTask) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := s.source.Stats(ctx)
	if err != nil {
		logrus.Errorf("failed to compute stats: %v", err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"documents":         stats.DocumentCount,
		"categories":        len(stats.DocumentsByCategory),
		"audit_entries":     stats.AuditCount,
		"pending_approvals": stats.PendingApprovals,
	}).Info("document stats")
}
