package backtest

import (
	"context"

	"sor-backtest/internal/venue"
)

// SliceSnapshotProvider 以固定序列提供快照。
type SliceSnapshotProvider struct {
	snapshots []venue.Snapshot
	index     int
}

func NewSliceSnapshotProvider(snaps []venue.Snapshot) *SliceSnapshotProvider {
	return &SliceSnapshotProvider{snapshots: snaps}
}

func (p *SliceSnapshotProvider) Next(ctx context.Context) (venue.Snapshot, bool, error) {
	if p.index >= len(p.snapshots) {
		return venue.Snapshot{}, false, nil
	}
	snap := p.snapshots[p.index]
	p.index++
	return snap, true, nil
}

// Reset 将游标移回序列起点，供多次回放复用。
func (p *SliceSnapshotProvider) Reset() {
	p.index = 0
}
