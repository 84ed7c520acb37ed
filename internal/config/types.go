package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Grid     GridConfig     `mapstructure:"grid"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
	ReportPath  string `mapstructure:"report_path"`
}

// KafkaConfig 描述行情主题的消费参数。
type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	Topic          string        `mapstructure:"topic"`
	GroupID        string        `mapstructure:"group_id"`
	ConsumeTimeout time.Duration `mapstructure:"consume_timeout"`
	MaxSnapshots   int           `mapstructure:"max_snapshots"`
}

// BacktestConfig 控制回测与拆单搜索的行为。
type BacktestConfig struct {
	TargetShares int `mapstructure:"target_shares"`
	Step         int `mapstructure:"step"`
	MaxBranches  int `mapstructure:"max_branches"`
	Workers      int `mapstructure:"workers"`
}

// GridConfig 为成本权重的搜索网格。
type GridConfig struct {
	LambdaOver  []float64 `mapstructure:"lambda_over"`
	LambdaUnder []float64 `mapstructure:"lambda_under"`
	ThetaQueue  []float64 `mapstructure:"theta_queue"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if len(c.Kafka.Brokers) == 0 {
		err = multierr.Append(err, errors.New("kafka.brokers 不能为空"))
	}
	if c.Kafka.Topic == "" {
		err = multierr.Append(err, errors.New("kafka.topic 不能为空"))
	}
	if c.Kafka.ConsumeTimeout <= 0 {
		err = multierr.Append(err, errors.New("kafka.consume_timeout 必须大于0"))
	}
	if c.Kafka.MaxSnapshots < 0 {
		err = multierr.Append(err, errors.New("kafka.max_snapshots 不能为负"))
	}
	if c.Backtest.TargetShares <= 0 {
		err = multierr.Append(err, errors.New("backtest.target_shares 必须大于0"))
	}
	if c.Backtest.Step <= 0 {
		err = multierr.Append(err, errors.New("backtest.step 必须大于0"))
	}
	if c.Backtest.MaxBranches <= 0 {
		err = multierr.Append(err, errors.New("backtest.max_branches 必须大于0"))
	}
	if c.Backtest.Workers <= 0 {
		err = multierr.Append(err, errors.New("backtest.workers 必须大于0"))
	}
	if len(c.Grid.LambdaOver) == 0 || len(c.Grid.LambdaUnder) == 0 || len(c.Grid.ThetaQueue) == 0 {
		err = multierr.Append(err, errors.New("grid 的三个权重列表都不能为空"))
	}
	for _, v := range c.Grid.LambdaOver {
		if v < 0 {
			err = multierr.Append(err, errors.New("grid.lambda_over 不能包含负值"))
			break
		}
	}
	for _, v := range c.Grid.LambdaUnder {
		if v < 0 {
			err = multierr.Append(err, errors.New("grid.lambda_under 不能包含负值"))
			break
		}
	}
	for _, v := range c.Grid.ThetaQueue {
		if v < 0 {
			err = multierr.Append(err, errors.New("grid.theta_queue 不能包含负值"))
			break
		}
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
