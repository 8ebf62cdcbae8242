package order

import (
	"github.com/shopspring/decimal"

	"dex-trader-go/market"
)

// MatchStatus 是估算得到的成交结论。
type MatchStatus string

const (
	// FullMatch 请求数量可全部成交
	FullMatch MatchStatus = "FULL_MATCH"
	// PartialMatch 深度或限价内只能部分成交
	PartialMatch MatchStatus = "PARTIAL_MATCH"
	// NoMatch 无流动性或限价完全不可达
	NoMatch MatchStatus = "NO_MATCH"
)

// FillEstimate 描述一笔订单的预期收益拆解。
// AmountYetToBeSold 以付出资产计价，恒非负，且仅在 FullMatch 时为零。
type FillEstimate struct {
	EstimatedReturns      decimal.Decimal
	AmountYetToBeSold     decimal.Decimal
	Status                MatchStatus
	AssetExchanged        string // 收到的资产符号，由调用方按市场填充
	AssetExchangedAgainst string // 付出的资产符号
}

// displayPlaces 展示用小数位数；累加过程从不取整。
const displayPlaces = 4

// DisplayReturns 返回展示用的预期收益。
func (e FillEstimate) DisplayReturns() string {
	return e.EstimatedReturns.StringFixed(displayPlaces)
}

// DisplayRemainder 返回展示用的未成交数量。
func (e FillEstimate) DisplayRemainder() string {
	return e.AmountYetToBeSold.StringFixed(displayPlaces)
}

// EstimateReturns 对一笔订单做单遍贪心撮合估算。
//
// counters 必须已按价格优先排序（卖方吃降序 bids，买方吃升序 asks，见
// market.Normalize）。amount 以付出资产计价：卖方为基础资产数量，买方为
// 计价资产数量。限价模式下遇到第一个不可接受的价位即停止；价格恰好等于
// 限价的档位可以成交。纯函数，可在每次输入变化时重复调用。
func EstimateReturns(amount, limitPrice decimal.Decimal, counters []market.CounterOrder, isMarket bool, side market.Side) FillEstimate {
	if amount.Sign() <= 0 || len(counters) == 0 {
		remainder := amount
		if remainder.Sign() < 0 {
			remainder = decimal.Zero
		}
		return FillEstimate{
			EstimatedReturns:  decimal.Zero,
			AmountYetToBeSold: remainder,
			Status:            NoMatch,
		}
	}

	remaining := amount
	proceeds := decimal.Zero
	for _, lvl := range counters {
		if !isMarket {
			if side == market.SideAsk && lvl.Price.LessThan(limitPrice) {
				break
			}
			if side == market.SideBid && lvl.Price.GreaterThan(limitPrice) {
				break
			}
		}
		// 档位容量换算到付出资产单位：买方的 amount 是计价资产，
		// 档位能吃掉的计价资产量为 size*price。
		capacity := lvl.Size
		if side == market.SideBid {
			capacity = lvl.Size.Mul(lvl.Price)
		}
		fill := decimal.Min(remaining, capacity)
		if side == market.SideAsk {
			proceeds = proceeds.Add(fill.Mul(lvl.Price))
		} else {
			proceeds = proceeds.Add(fill.Div(lvl.Price))
		}
		remaining = remaining.Sub(fill)
		if remaining.Sign() == 0 {
			break
		}
	}

	status := PartialMatch
	switch {
	case remaining.Sign() == 0:
		status = FullMatch
	case proceeds.Sign() == 0 && remaining.Equal(amount):
		status = NoMatch
	}
	return FillEstimate{
		EstimatedReturns:  proceeds,
		AmountYetToBeSold: remaining,
		Status:            status,
	}
}
