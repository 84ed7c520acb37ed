package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sor-backtest/internal/backtest"
	"sor-backtest/internal/benchmark"
	"sor-backtest/internal/config"
	"sor-backtest/internal/feed"
	"sor-backtest/internal/report"
	"sor-backtest/internal/store"
	"sor-backtest/internal/venue"
)

// App 聚合核心依赖并驱动一次完整回测的生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 执行完整流程：采集行情、校准权重、运行基准策略并落盘结果。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("回测系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("topic", a.cfg.Kafka.Topic),
		zap.Int("target_shares", a.cfg.Backtest.TargetShares),
	)

	subscriber, err := feed.NewSubscriber(a.cfg.Kafka, a.logger)
	if err != nil {
		return fmt.Errorf("初始化行情订阅失败: %w", err)
	}
	defer func() {
		if closeErr := subscriber.Close(); closeErr != nil {
			a.logger.Warn("关闭行情订阅失败", zap.Error(closeErr))
		}
	}()

	snapshots, err := subscriber.Collect(ctx, a.cfg.Kafka.MaxSnapshots, a.cfg.Kafka.ConsumeTimeout)
	if err != nil {
		return fmt.Errorf("采集行情失败: %w", err)
	}
	if len(snapshots) == 0 {
		return fmt.Errorf("没有收到任何行情快照，无法回测")
	}

	reportSvc, err := report.NewService(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化报告服务失败: %w", err)
	}

	engine, err := backtest.NewEngine(
		backtest.Config{
			TargetShares: a.cfg.Backtest.TargetShares,
			Step:         a.cfg.Backtest.Step,
			MaxBranches:  a.cfg.Backtest.MaxBranches,
			Workers:      a.cfg.Backtest.Workers,
		},
		backtest.Grid{
			LambdaOver:  a.cfg.Grid.LambdaOver,
			LambdaUnder: a.cfg.Grid.LambdaUnder,
			ThetaQueue:  a.cfg.Grid.ThetaQueue,
		},
		backtest.NewSliceSnapshotProvider(snapshots),
		reportSvc,
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("初始化校准引擎失败: %w", err)
	}

	outcome, err := engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("参数校准失败: %w", err)
	}

	baselines, savings := a.runBenchmarks(snapshots[0], outcome)

	summary := report.Summary{
		BestWeights: outcome.Weights,
		Optimized:   outcome.Result,
		Baselines:   baselines,
		SavingsBps:  savings,
		Snapshots:   outcome.Snapshots,
		Trials:      outcome.Trials,
		FinishedAt:  time.Now().UTC(),
	}

	if err := reportSvc.SaveRun(ctx, summary); err != nil {
		a.logger.Warn("保存回测结果失败", zap.Error(err))
	}
	if err := report.WriteJSON(a.cfg.App.ReportPath, summary); err != nil {
		a.logger.Warn("写入报告文件失败", zap.Error(err))
	}

	a.logger.Info("回测完成",
		zap.Float64("total_cash", outcome.Result.TotalCash),
		zap.Int("shares_filled", outcome.Result.SharesFilled),
		zap.Float64("avg_fill_price", outcome.Result.AvgFillPrice),
		zap.String("report_path", a.cfg.App.ReportPath),
	)

	return nil
}

// runBenchmarks 在首个快照上运行各基准策略，并计算相对节省。
func (a *App) runBenchmarks(first venue.Snapshot, outcome backtest.Outcome) (map[string]backtest.Result, map[string]float64) {
	venues := venue.Valid(first.Venues)
	if len(venues) == 0 {
		a.logger.Warn("首个快照没有有效场所，跳过基准对照")
		return nil, nil
	}

	target := a.cfg.Backtest.TargetShares
	baselines := map[string]backtest.Result{
		"best_ask": benchmark.BestAsk(target, venues),
		"twap":     benchmark.TWAP(target, venues),
		"vwap":     benchmark.VWAP(target, venues),
	}

	savings := make(map[string]float64, len(baselines))
	for name, result := range baselines {
		savings[name] = benchmark.SavingsBps(outcome.Result.TotalCash, result.TotalCash, outcome.Result.SharesFilled)
		a.logger.Info("基准策略结果",
			zap.String("strategy", name),
			zap.Float64("total_cash", result.TotalCash),
			zap.Float64("avg_fill_price", result.AvgFillPrice),
			zap.Float64("savings_bps", savings[name]),
		)
	}

	return baselines, savings
}
