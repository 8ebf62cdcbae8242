package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dex-trader-go/order"
)

// Transfer 是跨链转账的线上负载；签名由外部协作方补全，这里不做。
// Amount 以资产最小不可分单位计（整数字符串）。
type Transfer struct {
	Amount      string `json:"amount"`
	RecipientID string `json:"recipientId"`
	Data        string `json:"data"`
}

// BuildTransfer 把订单意图编码为 DEX 识别的转账负载。
// data 备注格式：市价 "<目标链>,market,<收款地址>"，
// 限价 "<目标链>,limit,<价格>,<收款地址>"。
func BuildTransfer(it order.Intent, unitValue int64) Transfer {
	amount := it.Amount.Mul(decimal.NewFromInt(unitValue)).Truncate(0)
	parts := []string{it.TargetChain, string(it.Mode)}
	if it.Mode == order.ModeLimit {
		parts = append(parts, it.Price.String())
	}
	parts = append(parts, it.DestAddress)
	return Transfer{
		Amount:      amount.String(),
		RecipientID: it.DexAddress,
		Data:        strings.Join(parts, ","),
	}
}

// SubmitError 是一次广播失败的结构化结果，携带原始负载供调用方做退款/重试记账。
type SubmitError struct {
	Transfer   Transfer
	StatusCode int
	Err        error
}

func (e *SubmitError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("broadcast transfer: status %d", e.StatusCode)
	}
	return fmt.Sprintf("broadcast transfer: %v", e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// BroadcastClient 向链节点提交交易；HTTPClient 可注入 httptest。
// 单次提交不重试，重试策略归调用方。
type BroadcastClient struct {
	HTTPClient *http.Client
	Limiter    RateLimiter
}

// NewDefaultHTTPClient 返回带超时的默认客户端。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// Submit 向 {baseURL}/transactions POST 一笔转账。
func (c *BroadcastClient) Submit(ctx context.Context, baseURL string, tx Transfer) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
	body, err := json.Marshal(tx)
	if err != nil {
		return &SubmitError{Transfer: tx, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return &SubmitError{Transfer: tx, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &SubmitError{Transfer: tx, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &SubmitError{Transfer: tx, StatusCode: resp.StatusCode}
	}
	return nil
}
