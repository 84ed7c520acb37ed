// Package benchmark 实现用于对照的基准执行策略：
// 最优卖价扫单、时间均分（TWAP）与按量加权（VWAP）。
// 所有策略都在传入场所列表的副本上就地扣减挂单量，不影响调用方数据。
package benchmark

import (
	"time"

	"sor-backtest/internal/backtest"
	"sor-backtest/internal/venue"
)

const twapIntervals = 10

// BestAsk 反复在当前最便宜的场所吃单，直到目标量完成或流动性耗尽。
func BestAsk(targetShares int, venues []venue.Venue) backtest.Result {
	start := time.Now()
	book := venue.Clone(venues)

	var (
		totalCash    float64
		sharesFilled int
	)
	remaining := targetShares

	for remaining > 0 && len(book) > 0 {
		best := 0
		for i := 1; i < len(book); i++ {
			if book[i].Ask < book[best].Ask {
				best = i
			}
		}

		buy := remaining
		if book[best].AskSize < buy {
			buy = book[best].AskSize
		}
		if buy <= 0 {
			break
		}

		totalCash += float64(buy) * (book[best].Ask + book[best].Fee)
		sharesFilled += buy
		remaining -= buy

		book[best].AskSize -= buy
		if book[best].AskSize <= 0 {
			book = append(book[:best], book[best+1:]...)
		}
	}

	return finish(totalCash, sharesFilled, start)
}

// TWAP 将目标量均分为固定数量的时间片，每片在当时最便宜的场所成交，
// 最后一片吃掉余量。
func TWAP(targetShares int, venues []venue.Venue) backtest.Result {
	start := time.Now()
	book := venue.Clone(venues)

	var (
		totalCash    float64
		sharesFilled int
	)
	perInterval := targetShares / twapIntervals

	for interval := 0; interval < twapIntervals; interval++ {
		if len(book) == 0 {
			break
		}

		want := perInterval
		if interval == twapIntervals-1 {
			want = targetShares - sharesFilled
		}

		best := -1
		for i := range book {
			if book[i].AskSize <= 0 {
				continue
			}
			if best < 0 || book[i].Ask < book[best].Ask {
				best = i
			}
		}
		if best < 0 {
			continue
		}

		buy := want
		if book[best].AskSize < buy {
			buy = book[best].AskSize
		}
		if buy <= 0 {
			continue
		}

		totalCash += float64(buy) * (book[best].Ask + book[best].Fee)
		sharesFilled += buy
		book[best].AskSize -= buy
	}

	return finish(totalCash, sharesFilled, start)
}

// VWAP 按各场所挂单量占比分配目标量，余量再补到最便宜的场所。
func VWAP(targetShares int, venues []venue.Venue) backtest.Result {
	start := time.Now()
	book := venue.Clone(venues)

	totalVolume := 0
	for _, v := range book {
		totalVolume += v.AskSize
	}
	if totalVolume == 0 {
		return finish(0, 0, start)
	}

	var (
		totalCash    float64
		sharesFilled int
	)

	for i := range book {
		if book[i].AskSize <= 0 {
			continue
		}
		proportion := float64(book[i].AskSize) / float64(totalVolume)
		buy := int(float64(targetShares) * proportion)
		if book[i].AskSize < buy {
			buy = book[i].AskSize
		}
		if buy <= 0 {
			continue
		}
		totalCash += float64(buy) * (book[i].Ask + book[i].Fee)
		sharesFilled += buy
	}

	remaining := targetShares - sharesFilled
	if remaining > 0 {
		best := -1
		for i := range book {
			if book[i].AskSize <= sharesFilled {
				continue
			}
			if best < 0 || book[i].Ask < book[best].Ask {
				best = i
			}
		}
		if best >= 0 {
			buy := remaining
			if book[best].AskSize < buy {
				buy = book[best].AskSize
			}
			if buy > 0 {
				totalCash += float64(buy) * (book[best].Ask + book[best].Fee)
				sharesFilled += buy
			}
		}
	}

	return finish(totalCash, sharesFilled, start)
}

// SavingsBps 以基点表示优化策略相对基准的每股节省幅度。
func SavingsBps(optimizedCash, baselineCash float64, shares int) float64 {
	if shares == 0 || baselineCash == 0 {
		return 0
	}

	avgOptimized := optimizedCash / float64(shares)
	avgBaseline := baselineCash / float64(shares)

	return (avgBaseline - avgOptimized) / avgBaseline * 10000
}

func finish(totalCash float64, sharesFilled int, start time.Time) backtest.Result {
	avg := 0.0
	if sharesFilled > 0 {
		avg = totalCash / float64(sharesFilled)
	}
	return backtest.Result{
		TotalCash:    totalCash,
		SharesFilled: sharesFilled,
		AvgFillPrice: avg,
		Elapsed:      time.Since(start),
	}
}
