// Package report 负责持久化回测结果与被跳过快照的诊断记录。
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"sor-backtest/internal/allocator"
	"sor-backtest/internal/backtest"
	"sor-backtest/internal/store"
)

// Summary 为一次完整回测的最终输出，既写入数据库也写入 JSON 报告。
type Summary struct {
	BestWeights allocator.Weights          `json:"best_parameters"`
	Optimized   backtest.Result            `json:"optimized"`
	Baselines   map[string]backtest.Result `json:"baselines"`
	SavingsBps  map[string]float64         `json:"savings_vs_baselines_bps"`
	Snapshots   int                        `json:"snapshots"`
	Trials      int                        `json:"trials"`
	FinishedAt  time.Time                  `json:"finished_at"`
}

// Service 将回测产出写入 SQLite。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化报告服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("report: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	payload TEXT NOT NULL,
	total_cash REAL NOT NULL,
	shares_filled INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS skipped_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	weights TEXT NOT NULL,
	snapshot_index INTEGER NOT NULL,
	cause TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_skipped_snapshots_weights ON skipped_snapshots(weights);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("report: 初始化表失败: %w", err)
	}
	return nil
}

// SaveRun 持久化一次回测的汇总结果。
func (s *Service) SaveRun(ctx context.Context, summary Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("report: 序列化回测结果失败: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO backtest_runs (payload, total_cash, shares_filled, created_at) VALUES (?, ?, ?, ?)`,
		string(payload),
		summary.Optimized.TotalCash,
		summary.Optimized.SharesFilled,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("report: 写入回测结果失败: %w", err)
	}
	return nil
}

// RecordSkip 记录单个被跳过的快照，实现 backtest.SkipRecorder。
// 写入失败只记日志，不影响回测流程。
func (s *Service) RecordSkip(ctx context.Context, weights string, snapshotIndex int, cause error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO skipped_snapshots (weights, snapshot_index, cause, created_at) VALUES (?, ?, ?, ?)`,
		weights,
		snapshotIndex,
		cause.Error(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		s.logger.Warn("写入跳过记录失败", zap.Error(err))
	}
}

// ListSkips 返回最近的跳过记录，供诊断使用。
func (s *Service) ListSkips(ctx context.Context, limit int) ([]SkipRecord, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT weights, snapshot_index, cause, created_at FROM skipped_snapshots ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("report: 查询跳过记录失败: %w", err)
	}
	defer rows.Close()

	var records []SkipRecord
	for rows.Next() {
		var rec SkipRecord
		var createdAt string
		if err := rows.Scan(&rec.Weights, &rec.SnapshotIndex, &rec.Cause, &createdAt); err != nil {
			return nil, fmt.Errorf("report: 扫描跳过记录失败: %w", err)
		}
		if ts, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
			rec.CreatedAt = ts
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// SkipRecord 为一条被跳过快照的诊断信息。
type SkipRecord struct {
	Weights       string
	SnapshotIndex int
	Cause         string
	CreatedAt     time.Time
}

// WriteJSON 将汇总结果写到指定路径的 JSON 文件。
func WriteJSON(path string, summary Summary) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("report: 创建目录 %q 失败: %w", dir, err)
		}
	}

	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("report: 序列化报告失败: %w", err)
	}

	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("report: 写入报告文件失败: %w", err)
	}
	return nil
}
