package backtest

import (
	"context"

	"sor-backtest/internal/venue"
)

// SnapshotProvider 按时间顺序提供行情快照。
type SnapshotProvider interface {
	Next(ctx context.Context) (venue.Snapshot, bool, error)
}

// SkipRecorder 记录单个快照被跳过的诊断信息，便于事后排查。
type SkipRecorder interface {
	RecordSkip(ctx context.Context, weights string, snapshotIndex int, cause error)
}
