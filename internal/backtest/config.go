package backtest

// Config 定义一次参数校准回测的输入。
type Config struct {
	TargetShares int // 目标买入股数
	Step         int // 拆单步长
	MaxBranches  int // 单次搜索的分支数上限
	Workers      int // 并行评估的权重组合数
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.TargetShares <= 0 {
		cfg.TargetShares = 5000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return cfg
}

// Grid 为成本权重的离散搜索网格。
type Grid struct {
	LambdaOver  []float64
	LambdaUnder []float64
	ThetaQueue  []float64
}

// DefaultGrid 返回默认的 5x5x5 权重网格。
func DefaultGrid() Grid {
	return Grid{
		LambdaOver:  []float64{0.2, 0.4, 0.6, 0.8, 1.0},
		LambdaUnder: []float64{0.3, 0.5, 0.7, 0.9, 1.1},
		ThetaQueue:  []float64{0.1, 0.3, 0.5, 0.7, 0.9},
	}
}

// Size 返回网格中的组合总数。
func (g Grid) Size() int {
	return len(g.LambdaOver) * len(g.LambdaUnder) * len(g.ThetaQueue)
}

// combos 按 lambda_over、lambda_under、theta_queue 的顺序展开全部组合。
// 展开顺序即平局裁决顺序：并行评估后仍按该顺序归并取最小值。
func (g Grid) combos() []gridPoint {
	points := make([]gridPoint, 0, g.Size())
	for _, lo := range g.LambdaOver {
		for _, lu := range g.LambdaUnder {
			for _, tq := range g.ThetaQueue {
				points = append(points, gridPoint{
					lambdaOver:  lo,
					lambdaUnder: lu,
					thetaQueue:  tq,
				})
			}
		}
	}
	return points
}

type gridPoint struct {
	lambdaOver  float64
	lambdaUnder float64
	thetaQueue  float64
}
