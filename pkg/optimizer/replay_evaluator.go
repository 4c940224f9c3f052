package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/raykavin/zepix"
	"github.com/raykavin/zepix/pkg/broker"
	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
	"github.com/raykavin/zepix/pkg/report"
	"github.com/raykavin/zepix/pkg/storage"
)

// ReplayEvaluator scores re-entry rules by replaying recorded quotes through a paper bot
type ReplayEvaluator struct {
	settings core.Settings
	ticks    []broker.Tick
	opens    []core.OrderRequest
	logger   logger.Logger
}

// NewReplayEvaluator creates an evaluator. Every evaluation opens the same original orders.
func NewReplayEvaluator(settings core.Settings, ticks []broker.Tick, opens []core.OrderRequest,
	logger logger.Logger) *ReplayEvaluator {

	return &ReplayEvaluator{
		settings: settings,
		ticks:    ticks,
		opens:    opens,
		logger:   logger,
	}
}

// Evaluate replays the quotes with the parameters applied and returns the chain metrics
func (e *ReplayEvaluator) Evaluate(ctx context.Context, params ParameterSet) (*Result, error) {
	startTime := time.Now()

	settings := e.settings
	rules, err := Apply(settings.Reentry, params)
	if err != nil {
		return nil, err
	}
	settings.Reentry = rules

	db, err := storage.FromMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	bot, err := zepix.NewBot(settings,
		zepix.WithReplay(),
		zepix.WithStorage(db),
		zepix.WithLogger(e.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bot: %w", err)
	}
	defer bot.Close()

	if err := bot.Replay(ctx, e.ticks, e.opens, nil); err != nil {
		return nil, fmt.Errorf("replay failed: %w", err)
	}

	return &Result{
		Parameters: params,
		Metrics:    MetricsFromSummaries(report.Build(bot.Chains(), bot.Orders)),
		Duration:   time.Since(startTime),
	}, nil
}
