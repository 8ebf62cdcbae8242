package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Context 提供校验所需的市场上下文。
// EffectiveBalance 为付出资产余额扣除基础手续费后的可用额度；
// MinOrderAmount 已按资产单位值换算成付出资产计价；
// PricePrecision 为 nil 时不限制价格小数位数。
type Context struct {
	EffectiveBalance decimal.Decimal
	MinOrderAmount   decimal.Decimal
	PricePrecision   *int
	SourceAsset      string
}

// Result 是一次校验的结论；FieldErrors 以字段名为键，展示后即可丢弃。
type Result struct {
	OK          bool
	FieldErrors map[string]string
}

// Err 返回指定字段的错误信息；无错误时为空串。
func (r Result) Err(field string) string {
	return r.FieldErrors[field]
}

// Validate 对订单请求做纯函数校验。
// amount 与 price 两条规则链彼此独立，各自首个失败的规则生效。
func Validate(req Request, ctx Context) Result {
	errs := make(map[string]string)

	amount, ok := req.ParsedAmount()
	switch {
	case !ok:
		errs["amount"] = "The order amount must be a number."
	case amount.GreaterThan(ctx.EffectiveBalance):
		errs["amount"] = "Insufficient balance!"
	case req.Mode == ModeMarket && amount.LessThan(ctx.MinOrderAmount):
		errs["amount"] = fmt.Sprintf(
			"The specified amount was less than the minimum order amount allowed by this DEX market which is %s %s.",
			ctx.MinOrderAmount.String(), strings.ToUpper(ctx.SourceAsset),
		)
	}

	if req.Mode == ModeLimit {
		price, ok := req.ParsedPrice()
		switch {
		case !ok:
			errs["price"] = "The order price must be a number."
		case price.IsZero():
			errs["price"] = "The order price cannot be 0."
		case ctx.PricePrecision != nil && fractionalDigits(req.Price) > *ctx.PricePrecision:
			plural := "s"
			if *ctx.PricePrecision == 1 {
				plural = ""
			}
			errs["price"] = fmt.Sprintf(
				"The order price for this DEX market cannot have more than %d decimal place%s.",
				*ctx.PricePrecision, plural,
			)
		}
	}

	return Result{OK: len(errs) == 0, FieldErrors: errs}
}

// fractionalDigits 统计有效小数位数，忽略末尾的 0（"1.230" 记 2 位）。
func fractionalDigits(s string) int {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(strings.TrimRight(s[i+1:], "0"))
}
