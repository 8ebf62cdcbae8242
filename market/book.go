package market

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Side 标识订单簿方向。
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// CounterOrder 表示对手方向上的一档挂单（只读快照）。
type CounterOrder struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBook 保存按价格优先排序的双边挂单：
// bids 按价格降序（最优买价在前），asks 按价格升序（最优卖价在前）。
type OrderBook struct {
	Bids []CounterOrder
	Asks []CounterOrder
}

// RawEntry 是外部行情源的一条原始档位，可能乱序或同价重复。
type RawEntry struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// RawBook 是一次未经清洗的订单簿快照。
type RawBook struct {
	Bids []RawEntry
	Asks []RawEntry
}

// MalformedBookError 表示快照不可用；调用方应跳过本次估算并展示无数据状态。
type MalformedBookError struct {
	Side   Side
	Index  int
	Reason string
}

func (e *MalformedBookError) Error() string {
	return fmt.Sprintf("malformed order book: %s[%d]: %s", e.Side, e.Index, e.Reason)
}

// Normalize 清洗原始快照：合并同价档位（数量相加）并按价格优先排序。
// 任意档位价格或数量非正时返回 MalformedBookError。
func Normalize(raw RawBook) (OrderBook, error) {
	bids, err := normalizeSide(SideBid, raw.Bids)
	if err != nil {
		return OrderBook{}, err
	}
	asks, err := normalizeSide(SideAsk, raw.Asks)
	if err != nil {
		return OrderBook{}, err
	}
	return OrderBook{Bids: bids, Asks: asks}, nil
}

func normalizeSide(side Side, entries []RawEntry) ([]CounterOrder, error) {
	levels := make([]CounterOrder, 0, len(entries))
	for i, e := range entries {
		if e.Price.Sign() <= 0 {
			return nil, &MalformedBookError{Side: side, Index: i, Reason: "non-positive price"}
		}
		if e.Amount.Sign() <= 0 {
			return nil, &MalformedBookError{Side: side, Index: i, Reason: "non-positive size"}
		}
		levels = append(levels, CounterOrder{Price: e.Price, Size: e.Amount})
	}
	sort.SliceStable(levels, func(i, j int) bool {
		if side == SideBid {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	// 排序后同价档位相邻，就地合并
	merged := levels[:0]
	for _, lvl := range levels {
		if n := len(merged); n > 0 && merged[n-1].Price.Equal(lvl.Price) {
			merged[n-1].Size = merged[n-1].Size.Add(lvl.Size)
			continue
		}
		merged = append(merged, lvl)
	}
	return merged, nil
}

// Counters 返回与请求方向相对的一侧：卖方吃 bids，买方吃 asks。
func (b OrderBook) Counters(side Side) []CounterOrder {
	if side == SideAsk {
		return b.Bids
	}
	return b.Asks
}

// TotalDepth 返回一侧挂单数量之和。
func (b OrderBook) TotalDepth(side Side) decimal.Decimal {
	total := decimal.Zero
	var levels []CounterOrder
	if side == SideBid {
		levels = b.Bids
	} else {
		levels = b.Asks
	}
	for _, lvl := range levels {
		total = total.Add(lvl.Size)
	}
	return total
}

// Best 返回一侧的最优档位；该侧为空时 ok 为 false。
func (b OrderBook) Best(side Side) (CounterOrder, bool) {
	var levels []CounterOrder
	if side == SideBid {
		levels = b.Bids
	} else {
		levels = b.Asks
	}
	if len(levels) == 0 {
		return CounterOrder{}, false
	}
	return levels[0], true
}
