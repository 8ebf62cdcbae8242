package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"dex-trader-go/gateway"
	"dex-trader-go/market"
	"dex-trader-go/order"
)

// 离线估算工具：读取一份订单簿快照 JSON，打印一笔订单的预期收益拆解。
// 快照格式与行情流消息一致：{"market":"clsk/lsk","bids":[{"price":"10","amount":"5"}],"asks":[...]}
func main() {
	bookPath := flag.String("book", "book.json", "订单簿快照文件")
	side := flag.String("side", "ask", "方向 bid/ask")
	mode := flag.String("mode", "market", "模式 market/limit")
	amount := flag.String("amount", "0", "数量（付出资产计价）")
	price := flag.String("price", "", "限价（仅 limit 模式）")
	flag.Parse()

	raw, err := os.ReadFile(*bookPath)
	if err != nil {
		log.Fatalf("读取快照失败: %v", err)
	}
	marketID, rawBook, err := gateway.ParseBookSnapshot(raw)
	if err != nil {
		log.Fatalf("解析快照失败: %v", err)
	}
	book, err := market.Normalize(rawBook)
	if err != nil {
		log.Fatalf("快照不可用: %v", err)
	}

	orderSide := market.Side(*side)
	if orderSide != market.SideBid && orderSide != market.SideAsk {
		log.Fatalf("非法方向 %q", *side)
	}
	orderMode := order.Mode(*mode)
	if orderMode != order.ModeMarket && orderMode != order.ModeLimit {
		log.Fatalf("非法模式 %q", *mode)
	}

	amt, ok := order.ParseDecimal(*amount)
	if !ok {
		log.Fatalf("非法数量 %q", *amount)
	}
	lim, ok := order.ParseDecimal(*price)
	if !ok && orderMode == order.ModeLimit {
		log.Fatalf("限价模式需要合法价格，收到 %q", *price)
	}

	est := order.EstimateReturns(amt, lim, book.Counters(orderSide), orderMode == order.ModeMarket, orderSide)

	fmt.Printf("market: %s\n", marketID)
	fmt.Printf("status: %s\n", est.Status)
	fmt.Printf("estimated returns: %s\n", est.DisplayReturns())
	if est.AmountYetToBeSold.Sign() > 0 {
		// 市价单多余部分会退款，限价单则留在簿中等待撮合
		note := "pending"
		if orderMode == order.ModeMarket {
			note = "refund"
		}
		fmt.Printf("unmatched: %s (%s)\n", est.DisplayRemainder(), note)
	}
}
