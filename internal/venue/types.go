package venue

import "time"

const (
	// DefaultFee 为每股吃单成本。
	DefaultFee = 0.003
	// DefaultRebate 为每股挂单返佣。
	DefaultRebate = 0.002
)

// Venue 表示单个交易场所在某一时刻的卖一报价。
// 每次快照都会构造一组全新的 Venue，搜索过程不得就地修改。
type Venue struct {
	ID      string
	Ask     float64
	AskSize int
	Fee     float64
	Rebate  float64
}

// Record 为行情快照中的单条原始记录。
type Record struct {
	PublisherID int     `json:"publisher_id"`
	AskPrice    float64 `json:"ask_px_00"`
	AskSize     int     `json:"ask_sz_00"`
}

// Snapshot 为一个时间点上所有场所的卖一行情。
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Venues    []Record  `json:"venues"`
}
