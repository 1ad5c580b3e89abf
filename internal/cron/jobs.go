package cronrunner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ipotracker/internal/config"
	"ipotracker/internal/runlog"
	"ipotracker/internal/service"
)

// Jobs are the scheduled pipeline runs. Each run checks its feature switch
// first and reports its outcome to the run log.
type Jobs struct {
	Discovery      *service.DiscoveryService
	Reconciliation *service.ReconciliationService
	Enrichment     *service.EnrichmentService
	Settings       *service.SystemSettingsService
	RunLog         *runlog.Client
	Logger         *zap.Logger
}

func (j *Jobs) Register(r *Runner, cfg config.CronConfig) error {
	if spec := strings.TrimSpace(cfg.Discovery); spec != "" {
		if _, err := r.Add(spec, j.DiscoverAndReconcile); err != nil {
			return fmt.Errorf("schedule discovery %q: %w", spec, err)
		}
	}
	if spec := strings.TrimSpace(cfg.Enrichment); spec != "" {
		if _, err := r.Add(spec, j.Enrich); err != nil {
			return fmt.Errorf("schedule enrichment %q: %w", spec, err)
		}
	}
	return nil
}

// DiscoverAndReconcile stages fresh listings, then resolves every unresolved
// finding. Reconciliation still runs when discovery failed so findings staged
// by earlier runs are not held back.
func (j *Jobs) DiscoverAndReconcile(ctx context.Context) {
	if j.Discovery != nil && j.enabled(ctx, service.FeatureDiscovery) {
		result, err := j.Discovery.RunDiscovery(ctx)
		j.report("ipo_discovery", result, err)
	}
	if j.Reconciliation != nil && j.enabled(ctx, service.FeatureReconciliation) {
		result, err := j.Reconciliation.RunReconciliation(ctx)
		j.report("ipo_reconciliation", result, err)
	}
}

func (j *Jobs) Enrich(ctx context.Context) {
	if j.Enrichment == nil || !j.enabled(ctx, service.FeatureEnrichment) {
		return
	}
	result, err := j.Enrichment.EnrichBatch(ctx)
	j.report("ipo_enrichment", result, err)
}

func (j *Jobs) enabled(ctx context.Context, key string) bool {
	on := j.Settings.IsEnabled(ctx, key, true)
	if !on && j.Logger != nil {
		j.Logger.Debug("scheduled run disabled", zap.String("switch", key))
	}
	return on
}

func (j *Jobs) report(action string, result any, err error) {
	details := map[string]any{"result": result, "trigger": "cron"}
	if err != nil {
		details["error"] = err.Error()
		if j.Logger != nil {
			j.Logger.Warn("scheduled run failed", zap.String("stage", action), zap.Error(err))
		}
	}
	if reportErr := j.RunLog.Report(action, runlog.LevelFor(err), details); reportErr != nil && j.Logger != nil {
		j.Logger.Debug("runlog report failed", zap.String("stage", action), zap.Error(reportErr))
	}
}
