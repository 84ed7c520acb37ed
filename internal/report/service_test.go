package report

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sor-backtest/internal/allocator"
	"sor-backtest/internal/backtest"
	"sor-backtest/internal/config"
	"sor-backtest/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(st, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc
}

func testSummary() Summary {
	return Summary{
		BestWeights: allocator.Weights{LambdaOver: 0.2, LambdaUnder: 0.3, ThetaQueue: 0.1},
		Optimized: backtest.Result{
			TotalCash:    50015.0,
			SharesFilled: 5000,
			AvgFillPrice: 10.003,
			Elapsed:      120 * time.Millisecond,
		},
		Baselines: map[string]backtest.Result{
			"best_ask": {TotalCash: 50100.0, SharesFilled: 5000, AvgFillPrice: 10.02},
		},
		SavingsBps: map[string]float64{"best_ask": 16.97},
		Snapshots:  60,
		Trials:     125,
		FinishedAt: time.Now().UTC(),
	}
}

func TestSaveRun(t *testing.T) {
	svc := newTestService(t)

	if err := svc.SaveRun(context.Background(), testSummary()); err != nil {
		t.Fatalf("SaveRun returned error: %v", err)
	}

	var count int
	if err := svc.db.QueryRow(`SELECT COUNT(*) FROM backtest_runs`).Scan(&count); err != nil {
		t.Fatalf("counting runs failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 stored run, got %d", count)
	}
}

func TestRecordSkipRoundtrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordSkip(ctx, "lambda_over=0.20 lambda_under=0.30 theta_queue=0.10", 7, errors.New("搜索空间超限"))
	svc.RecordSkip(ctx, "lambda_over=0.40 lambda_under=0.30 theta_queue=0.10", 9, errors.New("搜索空间超限"))

	records, err := svc.ListSkips(ctx, 10)
	if err != nil {
		t.Fatalf("ListSkips returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 skip records, got %d", len(records))
	}

	// 按写入倒序返回。
	if records[0].SnapshotIndex != 9 {
		t.Errorf("expected latest skip first, got %+v", records[0])
	}
	if records[1].SnapshotIndex != 7 {
		t.Errorf("expected earliest skip last, got %+v", records[1])
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "backtest_results.json")

	if err := WriteJSON(path, testSummary()); err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report failed: %v", err)
	}

	var decoded Summary
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.BestWeights.LambdaOver != 0.2 {
		t.Errorf("unexpected decoded weights: %+v", decoded.BestWeights)
	}
	if decoded.Optimized.SharesFilled != 5000 {
		t.Errorf("unexpected decoded result: %+v", decoded.Optimized)
	}
}

func TestNewServiceRequiresStore(t *testing.T) {
	if _, err := NewService(nil, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}
