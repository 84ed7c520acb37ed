package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sor-backtest/internal/allocator"
	"sor-backtest/internal/venue"
)

// Result 描述一次（可能部分成交的）执行结果。
type Result struct {
	TotalCash    float64
	SharesFilled int
	AvgFillPrice float64
	Elapsed      time.Duration
}

// Outcome 汇总一次参数校准的最终结果。
type Outcome struct {
	Weights   allocator.Weights
	Result    Result
	Trials    int
	Snapshots int
}

// Engine 在历史快照序列上执行权重网格搜索。
// 每个权重组合独立回放完整序列，组合之间除只读网格外不共享任何状态。
type Engine struct {
	cfg      Config
	grid     Grid
	provider SnapshotProvider
	recorder SkipRecorder
	logger   *zap.Logger
}

// NewEngine 构建校准引擎。recorder 可以为 nil，此时跳过记录仅写日志。
func NewEngine(cfg Config, grid Grid, provider SnapshotProvider, recorder SkipRecorder, logger *zap.Logger) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("backtest: provider 不能为空")
	}
	if grid.Size() == 0 {
		return nil, fmt.Errorf("backtest: 权重网格不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		cfg:      cfg.normalize(),
		grid:     grid,
		provider: provider,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// Run 执行完整的网格搜索并返回实际花费现金最低的权重组合。
// 各组合可并行评估；归并阶段按网格展开顺序取第一个最小值，
// 因此并行执行与串行循环的结果完全一致。
func (e *Engine) Run(ctx context.Context) (Outcome, error) {
	snapshots, err := e.drain(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(snapshots) == 0 {
		return Outcome{}, fmt.Errorf("backtest: 没有可用的行情快照")
	}

	points := e.grid.combos()
	results := make([]Result, len(points))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Workers)

	for i, point := range points {
		i, point := i, point
		group.Go(func() error {
			weights := allocator.Weights{
				LambdaOver:  point.lambdaOver,
				LambdaUnder: point.lambdaUnder,
				ThetaQueue:  point.thetaQueue,
			}

			opts := []allocator.Option{}
			if e.cfg.Step > 0 {
				opts = append(opts, allocator.WithStep(e.cfg.Step))
			}
			if e.cfg.MaxBranches > 0 {
				opts = append(opts, allocator.WithMaxBranches(e.cfg.MaxBranches))
			}

			alloc, err := allocator.New(weights, opts...)
			if err != nil {
				return err
			}

			result, err := e.replay(groupCtx, alloc, snapshots)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return Outcome{}, err
	}

	bestCash := math.Inf(1)
	bestIdx := -1
	for i, r := range results {
		if r.TotalCash < bestCash {
			bestCash = r.TotalCash
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return Outcome{}, fmt.Errorf("backtest: 网格搜索没有产生任何结果")
	}

	best := Outcome{
		Weights: allocator.Weights{
			LambdaOver:  points[bestIdx].lambdaOver,
			LambdaUnder: points[bestIdx].lambdaUnder,
			ThetaQueue:  points[bestIdx].thetaQueue,
		},
		Result:    results[bestIdx],
		Trials:    len(points),
		Snapshots: len(snapshots),
	}

	e.logger.Info("参数校准完成",
		zap.Int("trials", best.Trials),
		zap.Int("snapshots", best.Snapshots),
		zap.Float64("lambda_over", best.Weights.LambdaOver),
		zap.Float64("lambda_under", best.Weights.LambdaUnder),
		zap.Float64("theta_queue", best.Weights.ThetaQueue),
		zap.Float64("total_cash", best.Result.TotalCash),
		zap.Int("shares_filled", best.Result.SharesFilled),
	)

	return best, nil
}

// replay 用给定的 allocator 回放全部快照，模拟逐快照吃单直至目标量完成。
// remaining 在快照之间延续，单个快照出错只跳过该快照，不终止整次试验。
func (e *Engine) replay(ctx context.Context, alloc *allocator.Allocator, snapshots []venue.Snapshot) (Result, error) {
	start := time.Now()
	remaining := e.cfg.TargetShares

	var (
		totalCash    float64
		sharesFilled int
	)

	label := weightsLabel(alloc.Weights())

	for idx, snap := range snapshots {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if remaining <= 0 {
			break
		}

		venues := venue.Valid(snap.Venues)
		if len(venues) == 0 {
			continue
		}

		order := remaining
		if e.cfg.TargetShares < order {
			order = e.cfg.TargetShares
		}

		split, _, err := alloc.Allocate(order, venues)
		if err != nil {
			e.recordSkip(ctx, label, idx, err)
			continue
		}

		for i, v := range venues {
			if i >= len(split) || split[i] <= 0 {
				continue
			}
			buy := split[i]
			if v.AskSize < buy {
				buy = v.AskSize
			}
			if remaining < buy {
				buy = remaining
			}
			if buy <= 0 {
				continue
			}
			totalCash += float64(buy) * (v.Ask + v.Fee)
			sharesFilled += buy
			remaining -= buy
		}
	}

	avg := 0.0
	if sharesFilled > 0 {
		avg = totalCash / float64(sharesFilled)
	}

	return Result{
		TotalCash:    totalCash,
		SharesFilled: sharesFilled,
		AvgFillPrice: avg,
		Elapsed:      time.Since(start),
	}, nil
}

func (e *Engine) recordSkip(ctx context.Context, label string, idx int, cause error) {
	e.logger.Warn("跳过异常快照",
		zap.String("weights", label),
		zap.Int("snapshot_index", idx),
		zap.Error(cause),
	)
	if e.recorder != nil {
		e.recorder.RecordSkip(ctx, label, idx, cause)
	}
}

func (e *Engine) drain(ctx context.Context) ([]venue.Snapshot, error) {
	var snapshots []venue.Snapshot
	for {
		snap, ok, err := e.provider.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return snapshots, nil
		}
		snapshots = append(snapshots, snap)
	}
}

func weightsLabel(w allocator.Weights) string {
	return fmt.Sprintf("lambda_over=%.2f lambda_under=%.2f theta_queue=%.2f", w.LambdaOver, w.LambdaUnder, w.ThetaQueue)
}
