// Package feed 从 Kafka 行情主题消费订单簿快照。
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"sor-backtest/internal/config"
	"sor-backtest/internal/venue"
)

// Subscriber 封装 kafka-go Reader，按时间顺序解码快照。
type Subscriber struct {
	reader reader
	logger *zap.Logger
}

// reader 抽象 kafka.Reader 以便测试注入。
type reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// NewSubscriber 根据配置创建快照订阅者。
func NewSubscriber(cfg config.KafkaConfig, logger *zap.Logger) (*Subscriber, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("feed: kafka.brokers 不能为空")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("feed: kafka.topic 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	logger.Info("已连接行情主题",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.String("group_id", cfg.GroupID),
	)

	return &Subscriber{reader: r, logger: logger}, nil
}

// Collect 持续读取消息直到超时、上下文取消或达到 max 条快照。
// 无法解码的消息记录日志后跳过，不中断采集。
func (s *Subscriber) Collect(ctx context.Context, max int, timeout time.Duration) ([]venue.Snapshot, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var snapshots []venue.Snapshot
	for max <= 0 || len(snapshots) < max {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				break
			}
			return snapshots, fmt.Errorf("feed: 读取行情消息失败: %w", err)
		}

		var snap venue.Snapshot
		if err := json.Unmarshal(msg.Value, &snap); err != nil {
			s.logger.Warn("丢弃无法解析的行情消息",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			continue
		}

		snapshots = append(snapshots, snap)
		if len(snapshots)%50 == 0 {
			s.logger.Debug("行情采集进度", zap.Int("snapshots", len(snapshots)))
		}
	}

	s.logger.Info("行情采集完成", zap.Int("snapshots", len(snapshots)))
	return snapshots, nil
}

// Close 关闭底层 Reader。
func (s *Subscriber) Close() error {
	return s.reader.Close()
}
