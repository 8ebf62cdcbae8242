package order

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"dex-trader-go/market"
)

// Mode 下单模式：市价立即成交，限价只按不差于指定价成交。
type Mode string

const (
	ModeMarket Mode = "market"
	ModeLimit  Mode = "limit"
)

// Request 是一次待提交订单的原始表单输入。
// Amount/Price 保留字符串形式，由校验器负责解析；Price 仅在限价模式下有意义。
type Request struct {
	Side   market.Side
	Mode   Mode
	Amount string
	Price  string
}

// numberPattern 与原始输入框一致：十进制数字，允许省略整数或小数部分之一。
var numberPattern = regexp.MustCompile(`^([0-9]+\.?|[0-9]*\.[0-9]+)$`)

// ParseDecimal 按表单规则解析十进制输入；空串或非法格式返回 ok=false。
func ParseDecimal(s string) (decimal.Decimal, bool) {
	if !numberPattern.MatchString(s) {
		return decimal.Decimal{}, false
	}
	s = strings.TrimSuffix(s, ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParsedAmount 解析数量输入。
func (r Request) ParsedAmount() (decimal.Decimal, bool) {
	return ParseDecimal(r.Amount)
}

// ParsedPrice 解析价格输入。
func (r Request) ParsedPrice() (decimal.Decimal, bool) {
	return ParseDecimal(r.Price)
}
