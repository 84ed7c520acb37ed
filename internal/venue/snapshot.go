package venue

import "strconv"

// FromSnapshot 将原始记录汇总为 Venue 列表。
// 同一 publisher 出现多条记录时保留首次出现的价量，不做合并或均值。
func FromSnapshot(records []Record) []Venue {
	seen := make(map[string]struct{}, len(records))
	venues := make([]Venue, 0, len(records))

	for _, rec := range records {
		id := strconv.Itoa(rec.PublisherID)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		venues = append(venues, Venue{
			ID:      id,
			Ask:     rec.AskPrice,
			AskSize: rec.AskSize,
			Fee:     DefaultFee,
			Rebate:  DefaultRebate,
		})
	}

	return venues
}

// Valid 过滤掉价格或数量非正的记录后构造 Venue 列表。
// 搜索前必须先经过该过滤，见回测引擎的调用处。
func Valid(records []Record) []Venue {
	filtered := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.AskPrice > 0 && rec.AskSize > 0 {
			filtered = append(filtered, rec)
		}
	}
	return FromSnapshot(filtered)
}

// Clone 返回 Venue 列表的独立副本，供需要就地扣减数量的策略使用。
func Clone(venues []Venue) []Venue {
	out := make([]Venue, len(venues))
	copy(out, venues)
	return out
}
