package gateway

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"dex-trader-go/market"
)

// BookHandler 接收订单簿快照；清洗（market.Normalize）由上层完成。
type BookHandler interface {
	OnBookSnapshot(marketID string, raw market.RawBook)
}

// BookMessage 对应行情流的一条订单簿快照消息。
type BookMessage struct {
	Market string       `json:"market"`
	Bids   []LevelEntry `json:"bids"`
	Asks   []LevelEntry `json:"asks"`
}

// LevelEntry 保留 json.Number，避免价格经过 float64 往返。
type LevelEntry struct {
	Price  json.Number `json:"price"`
	Amount json.Number `json:"amount"`
}

// ParseBookSnapshot 解析快照消息为原始订单簿。
// 数字字段非法时返回错误，调用方应跳过该条消息。
func ParseBookSnapshot(rawMsg []byte) (string, market.RawBook, error) {
	var msg BookMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		return "", market.RawBook{}, err
	}
	if msg.Market == "" {
		return "", market.RawBook{}, fmt.Errorf("book snapshot missing market id")
	}
	bids, err := parseEntries(msg.Bids)
	if err != nil {
		return "", market.RawBook{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseEntries(msg.Asks)
	if err != nil {
		return "", market.RawBook{}, fmt.Errorf("asks: %w", err)
	}
	return msg.Market, market.RawBook{Bids: bids, Asks: asks}, nil
}

func parseEntries(entries []LevelEntry) ([]market.RawEntry, error) {
	out := make([]market.RawEntry, 0, len(entries))
	for i, e := range entries {
		price, err := decimal.NewFromString(e.Price.String())
		if err != nil {
			return nil, fmt.Errorf("entry %d price %q: %w", i, e.Price, err)
		}
		amount, err := decimal.NewFromString(e.Amount.String())
		if err != nil {
			return nil, fmt.Errorf("entry %d amount %q: %w", i, e.Amount, err)
		}
		out = append(out, market.RawEntry{Price: price, Amount: amount})
	}
	return out, nil
}

// BookFeed 连接 DEX 节点的订单簿推送流（执行环境确保网络可达）。
// 仅提供连接与读取；断线重连由调用方的外层循环负责。
type BookFeed struct {
	Endpoint string // 例如 wss://dex.example
	markets  []string
	Dialer   *websocket.Dialer
}

func NewBookFeed(endpoint string) *BookFeed {
	return &BookFeed{
		Endpoint: endpoint,
		Dialer:   websocket.DefaultDialer,
	}
}

// Subscribe 添加一个市场的订阅。
func (f *BookFeed) Subscribe(marketID string) error {
	if marketID == "" {
		return fmt.Errorf("market id required")
	}
	f.markets = append(f.markets, marketID)
	return nil
}

// Run 建立连接并持续读取快照，解析成功的消息交给 handler。
// 连接断开或读取失败时返回错误。
func (f *BookFeed) Run(handler BookHandler) error {
	if len(f.markets) == 0 {
		return fmt.Errorf("no markets subscribed")
	}
	u := url.URL{
		Scheme: "wss",
		Host:   strings.TrimPrefix(f.Endpoint, "wss://"),
		Path:   "/orderbook",
	}
	q := u.Query()
	q.Set("markets", strings.Join(f.markets, ","))
	u.RawQuery = q.Encode()

	conn, _, err := f.Dialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		marketID, raw, err := ParseBookSnapshot(message)
		if err != nil {
			// 单条消息解析失败不致断流
			continue
		}
		if handler != nil {
			handler.OnBookSnapshot(marketID, raw)
		}
	}
}
