package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"dex-trader-go/market"
)

// MarketDef 描述一个双资产跨链市场的下单入口。
type MarketDef struct {
	BaseAsset  string
	QuoteAsset string
	// DexAddress 各链上 DEX 托管钱包地址，以资产符号为键。
	DexAddress map[string]string
	// BroadcastURL 各资产对应链节点的 API 地址。
	BroadcastURL map[string]string
}

// WalletKeys 是交易者已签入的各资产钱包地址。
type WalletKeys map[string]string

// SideMapping 是按方向解析出的完整下单路径：bid 相对 ask 源/目标互换。
type SideMapping struct {
	SourceAsset  string
	TargetAsset  string
	SourceChain  string
	TargetChain  string
	DexAddress   string // 源链上的 DEX 托管地址
	DestAddress  string // 目标链上交易者的收款地址
	BroadcastURL string // 源链节点
}

// Intent 是一笔通过校验的订单的规范化记录，交由下游交易构造方消费。
// Price 仅在限价模式下有值。
type Intent struct {
	Side   market.Side
	Mode   Mode
	Amount decimal.Decimal
	Price  decimal.Decimal
	SideMapping
}

// UnresolvedMarketError 表示市场或钱包映射不完整，本次提交必须中止。
type UnresolvedMarketError struct {
	Missing string
}

func (e *UnresolvedMarketError) Error() string {
	return fmt.Sprintf("unresolved market mapping: missing %s", e.Missing)
}

// sideAssetOrder 按方向给出 [付出资产, 收到资产] 在 (base, quote) 中的取法。
var sideAssetOrder = map[market.Side]func(base, quote string) (source, target string){
	market.SideAsk: func(base, quote string) (string, string) { return base, quote },
	market.SideBid: func(base, quote string) (string, string) { return quote, base },
}

// ResolveMapping 按方向解析市场与钱包信息为完整的下单路径。
// 任一必要项缺失时返回 UnresolvedMarketError，绝不产出部分映射。
func ResolveMapping(side market.Side, mkt MarketDef, wallet WalletKeys) (SideMapping, error) {
	pick, ok := sideAssetOrder[side]
	if !ok {
		return SideMapping{}, &UnresolvedMarketError{Missing: fmt.Sprintf("side %q", side)}
	}
	if mkt.BaseAsset == "" || mkt.QuoteAsset == "" {
		return SideMapping{}, &UnresolvedMarketError{Missing: "market asset pair"}
	}
	source, target := pick(mkt.BaseAsset, mkt.QuoteAsset)

	m := SideMapping{
		SourceAsset: source,
		TargetAsset: target,
		// 本设计中资产与链一一对应
		SourceChain:  source,
		TargetChain:  target,
		DexAddress:   mkt.DexAddress[source],
		DestAddress:  wallet[target],
		BroadcastURL: mkt.BroadcastURL[source],
	}
	switch {
	case m.DexAddress == "":
		return SideMapping{}, &UnresolvedMarketError{Missing: "DEX wallet address for " + source}
	case m.DestAddress == "":
		return SideMapping{}, &UnresolvedMarketError{Missing: "wallet key for " + target}
	case m.BroadcastURL == "":
		return SideMapping{}, &UnresolvedMarketError{Missing: "broadcast URL for " + source}
	}
	return m, nil
}

// BuildIntent 将通过校验的请求与解析好的映射组装成订单意图。确定性纯函数。
func BuildIntent(req Request, m SideMapping) (Intent, error) {
	amount, ok := req.ParsedAmount()
	if !ok {
		return Intent{}, fmt.Errorf("build intent: amount %q is not a number", req.Amount)
	}
	it := Intent{
		Side:        req.Side,
		Mode:        req.Mode,
		Amount:      amount,
		SideMapping: m,
	}
	if req.Mode == ModeLimit {
		price, ok := req.ParsedPrice()
		if !ok {
			return Intent{}, fmt.Errorf("build intent: price %q is not a number", req.Price)
		}
		it.Price = price
	}
	return it, nil
}
