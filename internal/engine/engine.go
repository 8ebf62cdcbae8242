package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dex-trader-go/config"
	"dex-trader-go/gateway"
	"dex-trader-go/infrastructure/logger"
	"dex-trader-go/market"
	"dex-trader-go/metrics"
	"dex-trader-go/order"
)

var (
	// ErrNoBookData 当前市场没有可用订单簿快照
	ErrNoBookData = errors.New("no order book data")
	// ErrSubmissionInFlight 同一方向已有一笔提交在途
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrUnknownMarket 配置中不存在该市场
	ErrUnknownMarket = errors.New("unknown market")
)

// BalanceSource 提供各资产的当前余额（以资产单位计）。
type BalanceSource interface {
	Balance(asset string) decimal.Decimal
}

// Broadcaster 向链节点提交交易；一次性调用，不在内部重试。
type Broadcaster interface {
	Submit(ctx context.Context, baseURL string, tx gateway.Transfer) error
}

// Config 引擎配置
type Config struct {
	MarketID string           // 交易市场，例如 clsk/lsk
	App      config.AppConfig // 已通过校验的应用配置
}

// Components 引擎依赖组件
type Components struct {
	MarketData *market.Service
	Balances   BalanceSource
	Broadcast  Broadcaster
	Logger     *logger.Logger
	Monitor    *metrics.Monitor
}

// Engine 协调下单表单的两条同步路径：
// 行情快照 → 清洗 → 估算（随输入实时调用）；提交 → 校验 → 意图 → 广播。
type Engine struct {
	mu  sync.RWMutex
	cfg Config

	marketData *market.Service
	balances   BalanceSource
	broadcast  Broadcaster
	logger     *logger.Logger
	monitor    *metrics.Monitor

	// 每个方向同一时刻至多一笔在途提交
	inflight map[market.Side]bool

	stats Statistics
}

// Statistics 引擎统计信息
type Statistics struct {
	StartTime        time.Time
	TotalEstimates   int64
	TotalSubmissions int64
	TotalRejects     int64
	TotalErrors      int64
	LastEstimateTime time.Time
	LastSubmitTime   time.Time
	mu               sync.RWMutex
}

// SubmitOutcome 是一次提交尝试的结果。
// Validation.OK 为 false 时提交被拦下，Intent/Transfer 为零值。
type SubmitOutcome struct {
	Validation order.Result
	Intent     order.Intent
	Transfer   gateway.Transfer
}

// New 创建引擎
func New(cfg Config, components Components) (*Engine, error) {
	if cfg.MarketID == "" {
		return nil, errors.New("market id required")
	}
	if _, ok := cfg.App.Markets[cfg.MarketID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, cfg.MarketID)
	}
	if components.MarketData == nil {
		return nil, errors.New("market data service required")
	}
	if components.Balances == nil {
		return nil, errors.New("balance source required")
	}
	if components.Broadcast == nil {
		return nil, errors.New("broadcaster required")
	}
	if components.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &Engine{
		cfg:        cfg,
		marketData: components.MarketData,
		balances:   components.Balances,
		broadcast:  components.Broadcast,
		logger:     components.Logger,
		monitor:    components.Monitor,
		inflight:   make(map[market.Side]bool),
		stats:      Statistics{StartTime: time.Now()},
	}, nil
}

// ApplyConfig 应用热更新后的配置；当前市场消失时拒绝。
func (e *Engine) ApplyConfig(app config.AppConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := app.Markets[e.cfg.MarketID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMarket, e.cfg.MarketID)
	}
	e.cfg.App = app
	e.logger.Info("Config applied", zap.String("market", e.cfg.MarketID))
	return nil
}

// OnBookSnapshot 实现 gateway.BookHandler：清洗并保存最新快照。
func (e *Engine) OnBookSnapshot(marketID string, raw market.RawBook) {
	if err := e.marketData.OnRawBook(marketID, raw, time.Now()); err != nil {
		if e.monitor != nil {
			e.monitor.RecordMalformedBook()
		}
		e.logger.Warn("Order book snapshot rejected",
			zap.String("market", marketID),
			zap.Error(err))
		return
	}
	if e.monitor != nil {
		if book, ok := e.marketData.Book(marketID); ok {
			e.monitor.UpdateBookLevels(marketID, len(book.Bids), len(book.Asks))
		}
	}
}

// EstimateOrder 对当前输入做一次成交估算；每次输入变化均可调用。
// amountStr 解析失败按 0 处理（与表单行为一致），无可用快照时返回 ErrNoBookData。
func (e *Engine) EstimateOrder(side market.Side, mode order.Mode, amountStr, priceStr string) (order.FillEstimate, error) {
	book, ok := e.marketData.Book(e.cfg.MarketID)
	if !ok {
		return order.FillEstimate{}, ErrNoBookData
	}

	amount, ok := order.ParseDecimal(amountStr)
	if !ok {
		amount = decimal.Zero
	}
	price, ok := order.ParseDecimal(priceStr)
	if !ok {
		price = decimal.Zero
	}

	est := order.EstimateReturns(amount, price, book.Counters(side), mode == order.ModeMarket, side)

	base, quote := e.assetPair()
	if side == market.SideAsk {
		est.AssetExchanged = strings.ToUpper(quote)
		est.AssetExchangedAgainst = strings.ToUpper(base)
	} else {
		est.AssetExchanged = strings.ToUpper(base)
		est.AssetExchangedAgainst = strings.ToUpper(quote)
	}

	if e.monitor != nil {
		e.monitor.RecordEstimate(string(side), string(est.Status))
	}
	e.stats.mu.Lock()
	e.stats.TotalEstimates++
	e.stats.LastEstimateTime = time.Now()
	e.stats.mu.Unlock()

	e.logger.LogEstimate(e.cfg.MarketID, map[string]interface{}{
		"side":    string(side),
		"mode":    string(mode),
		"status":  string(est.Status),
		"returns": est.DisplayReturns(),
	})
	return est, nil
}

// Submit 执行一次提交：校验 → 解析映射 → 组装意图 → 构造并广播转账。
// 校验失败不是错误，通过 SubmitOutcome.Validation 返回；
// 同方向已有在途提交时返回 ErrSubmissionInFlight。
func (e *Engine) Submit(ctx context.Context, req order.Request) (SubmitOutcome, error) {
	if !e.acquire(req.Side) {
		return SubmitOutcome{}, ErrSubmissionInFlight
	}
	defer e.release(req.Side)

	vctx, err := e.validationContext(req.Side)
	if err != nil {
		return SubmitOutcome{}, err
	}
	result := order.Validate(req, vctx)
	if !result.OK {
		if e.monitor != nil {
			e.monitor.RecordSubmissionReject()
			for field := range result.FieldErrors {
				e.monitor.RecordValidationFailure(field)
			}
		}
		e.stats.mu.Lock()
		e.stats.TotalRejects++
		e.stats.mu.Unlock()
		return SubmitOutcome{Validation: result}, nil
	}

	mapping, err := order.ResolveMapping(req.Side, e.marketDef(), e.walletKeys())
	if err != nil {
		if e.monitor != nil {
			e.monitor.RecordSubmissionError("mapping")
		}
		e.recordError(err, map[string]interface{}{"stage": "mapping"})
		return SubmitOutcome{Validation: result}, err
	}

	intent, err := order.BuildIntent(req, mapping)
	if err != nil {
		if e.monitor != nil {
			e.monitor.RecordSubmissionError("intent")
		}
		e.recordError(err, map[string]interface{}{"stage": "intent"})
		return SubmitOutcome{Validation: result}, err
	}

	transfer := gateway.BuildTransfer(intent, e.unitValue(mapping.SourceAsset))
	outcome := SubmitOutcome{Validation: result, Intent: intent, Transfer: transfer}

	start := time.Now()
	err = e.broadcast.Submit(ctx, mapping.BroadcastURL, transfer)
	if e.monitor != nil {
		e.monitor.RecordBroadcastLatency(time.Since(start).Seconds())
	}
	if err != nil {
		if e.monitor != nil {
			e.monitor.RecordSubmissionError("broadcast")
		}
		e.recordError(err, map[string]interface{}{
			"stage":  "broadcast",
			"market": e.cfg.MarketID,
			"side":   string(req.Side),
		})
		return outcome, err
	}

	if e.monitor != nil {
		e.monitor.RecordSubmission()
	}
	e.stats.mu.Lock()
	e.stats.TotalSubmissions++
	e.stats.LastSubmitTime = time.Now()
	e.stats.mu.Unlock()

	e.logger.LogSubmission("broadcast_ok", e.cfg.MarketID, map[string]interface{}{
		"side":   string(req.Side),
		"mode":   string(req.Mode),
		"amount": intent.Amount.String(),
	})
	return outcome, nil
}

// Stats 返回统计信息快照。
func (e *Engine) Stats() Statistics {
	e.stats.mu.RLock()
	defer e.stats.mu.RUnlock()
	return Statistics{
		StartTime:        e.stats.StartTime,
		TotalEstimates:   e.stats.TotalEstimates,
		TotalSubmissions: e.stats.TotalSubmissions,
		TotalRejects:     e.stats.TotalRejects,
		TotalErrors:      e.stats.TotalErrors,
		LastEstimateTime: e.stats.LastEstimateTime,
		LastSubmitTime:   e.stats.LastSubmitTime,
	}
}

func (e *Engine) acquire(side market.Side) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight[side] {
		return false
	}
	e.inflight[side] = true
	return true
}

func (e *Engine) release(side market.Side) {
	e.mu.Lock()
	e.inflight[side] = false
	e.mu.Unlock()
}

func (e *Engine) recordError(err error, fields map[string]interface{}) {
	e.stats.mu.Lock()
	e.stats.TotalErrors++
	e.stats.mu.Unlock()
	e.logger.LogError(err, fields)
}

func (e *Engine) marketConfig() config.MarketConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.App.Markets[e.cfg.MarketID]
}

func (e *Engine) assetPair() (base, quote string) {
	mkt := e.marketConfig()
	if len(mkt.Assets) != 2 {
		return "", ""
	}
	return mkt.Assets[0], mkt.Assets[1]
}

// sourceAsset 返回该方向付出的资产：卖方付出基础资产，买方付出计价资产。
func (e *Engine) sourceAsset(side market.Side) string {
	base, quote := e.assetPair()
	if side == market.SideAsk {
		return base
	}
	return quote
}

func (e *Engine) unitValue(asset string) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.App.Assets[asset].UnitValue
}

func (e *Engine) marketDef() order.MarketDef {
	e.mu.RLock()
	defer e.mu.RUnlock()
	mkt := e.cfg.App.Markets[e.cfg.MarketID]
	def := order.MarketDef{
		DexAddress:   make(map[string]string, len(mkt.Chains)),
		BroadcastURL: make(map[string]string, 2),
	}
	if len(mkt.Assets) == 2 {
		def.BaseAsset = mkt.Assets[0]
		def.QuoteAsset = mkt.Assets[1]
	}
	for asset, chain := range mkt.Chains {
		def.DexAddress[asset] = chain.WalletAddress
	}
	for _, asset := range mkt.Assets {
		def.BroadcastURL[asset] = e.cfg.App.Assets[asset].APIURL
	}
	return def
}

func (e *Engine) walletKeys() order.WalletKeys {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make(order.WalletKeys, len(e.cfg.App.Wallet))
	for asset, w := range e.cfg.App.Wallet {
		keys[asset] = w.Address
	}
	return keys
}

// validationContext 组装校验上下文：有效余额为源资产余额扣除基础手续费，
// 最小下单额按资产单位值换算为源资产计价。
func (e *Engine) validationContext(side market.Side) (order.Context, error) {
	source := e.sourceAsset(side)
	if source == "" {
		return order.Context{}, fmt.Errorf("%w: %s", ErrUnknownMarket, e.cfg.MarketID)
	}

	e.mu.RLock()
	mkt := e.cfg.App.Markets[e.cfg.MarketID]
	chain := mkt.Chains[source]
	unitValue := e.cfg.App.Assets[source].UnitValue
	precision := mkt.PriceDecimalPrecision
	e.mu.RUnlock()

	if unitValue <= 0 {
		return order.Context{}, fmt.Errorf("asset %s unit value not configured", source)
	}
	unit := decimal.NewFromInt(unitValue)
	fee := decimal.NewFromInt(chain.ExchangeFeeBase).Div(unit)
	minAmount := decimal.NewFromInt(chain.MinOrderAmount).Div(unit)

	return order.Context{
		EffectiveBalance: e.balances.Balance(source).Sub(fee),
		MinOrderAmount:   minAmount,
		PricePrecision:   precision,
		SourceAsset:      source,
	}, nil
}
