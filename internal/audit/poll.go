package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/citation-cli/internal/model"
	"github.com/sells-group/citation-cli/internal/store"
)

// PollSummary counts the outcomes of one PollPending tick.
type PollSummary struct {
	Checked   int `json:"checked"`
	Started   int `json:"started"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
	Transient int `json:"transient"`
	// Failed counts runs whose attempt hit a non-transient error this tick.
	// It does not mean the run was marked failed.
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type outcome int

const (
	outcomeStarted outcome = iota
	outcomeCompleted
	outcomePending
	outcomeTransient
	outcomeFailed
	outcomeSkipped
)

// PollPending is one scheduler tick: it starts submitted runs and polls
// running ones, oldest first, up to limit runs. Per-run errors are logged
// and counted and never abort the batch.
func (o *Orchestrator) PollPending(ctx context.Context, limit int) (PollSummary, error) {
	runs, err := o.store.ListAuditRuns(ctx, store.AuditRunFilter{
		Statuses:    []model.AuditStatus{model.AuditStatusSubmitted, model.AuditStatusRunning},
		OldestFirst: true,
		Limit:       limit,
	})
	if err != nil {
		return PollSummary{}, eris.Wrap(err, "audit: list pending runs")
	}

	summary := PollSummary{Checked: len(runs)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range runs {
		run := runs[i]
		g.Go(func() error {
			res := o.processRun(gctx, &run)
			mu.Lock()
			defer mu.Unlock()
			switch res {
			case outcomeStarted:
				summary.Started++
			case outcomeCompleted:
				summary.Completed++
			case outcomePending:
				summary.Pending++
			case outcomeTransient:
				summary.Transient++
			case outcomeFailed:
				summary.Failed++
			case outcomeSkipped:
				summary.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("poll tick finished",
		zap.Int("checked", summary.Checked),
		zap.Int("started", summary.Started),
		zap.Int("completed", summary.Completed),
		zap.Int("pending", summary.Pending),
		zap.Int("transient", summary.Transient),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

func (o *Orchestrator) processRun(ctx context.Context, run *model.AuditRun) outcome {
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("status", string(run.Status)))

	release, err := o.locker.Obtain(ctx, run.ID)
	if errors.Is(err, ErrLocked) {
		log.Debug("run locked, skipping")
		return outcomeSkipped
	}
	if err != nil {
		log.Warn("obtain run lock", zap.Error(err))
		return outcomeTransient
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("release run lock", zap.Error(err))
		}
	}()

	switch run.Status {
	case model.AuditStatusSubmitted:
		if err := o.Start(ctx, run); err != nil {
			return classifyRunError(log, err)
		}
		return outcomeStarted
	case model.AuditStatusRunning:
		done, err := o.PollAndReconcile(ctx, run)
		if err != nil {
			return classifyRunError(log, err)
		}
		if done {
			return outcomeCompleted
		}
		return outcomePending
	default:
		return outcomeSkipped
	}
}

func classifyRunError(log *zap.Logger, err error) outcome {
	switch {
	case errors.Is(err, store.ErrStatusConflict):
		log.Info("run advanced by another worker", zap.Error(err))
		return outcomeSkipped
	case IsTransient(err):
		log.Warn("transient error, will retry next poll", zap.Error(err))
		return outcomeTransient
	default:
		log.Error("poll attempt failed", zap.Error(err), zap.Bool("data_error", isDataError(err)))
		return outcomeFailed
	}
}
