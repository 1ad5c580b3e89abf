package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"ipotracker/internal/models"
	"ipotracker/internal/repository"
)

var ErrOfferingNotFound = errors.New("offering not found")

// recordStage stores the outcome of one pipeline run. A nil runErr marks the
// run successful; bookkeeping failures are only logged.
func recordStage(ctx context.Context, repo repository.Repository, logger *zap.Logger, stage string, startedAt time.Time, stats any, runErr error) {
	if repo == nil {
		return
	}
	attempt := startedAt.UTC()
	state := &models.SyncState{
		Scope:         stage,
		LastAttemptAt: &attempt,
		StatsJSON:     mustJSON(stats),
	}
	if runErr != nil {
		state.LastError = strPtr(runErr.Error())
		if prev, err := repo.GetSyncState(ctx, stage); err == nil && prev != nil {
			state.LastSuccessAt = prev.LastSuccessAt
		}
	} else {
		done := time.Now().UTC()
		state.LastSuccessAt = &done
	}
	if err := repo.SaveSyncState(context.WithoutCancel(ctx), state); err != nil && logger != nil {
		logger.Warn("sync state write failed", zap.String("stage", stage), zap.Error(err))
	}
}

func mustJSON(v any) datatypes.JSON {
	payload, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(payload)
}

func strPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func nopLogger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func nowFunc(fn func() time.Time) time.Time {
	if fn != nil {
		return fn().UTC()
	}
	return time.Now().UTC()
}
