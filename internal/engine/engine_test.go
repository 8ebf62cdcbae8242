package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-trader-go/config"
	"dex-trader-go/gateway"
	"dex-trader-go/infrastructure/logger"
	"dex-trader-go/market"
	"dex-trader-go/order"
)

type fakeBalances map[string]decimal.Decimal

func (b fakeBalances) Balance(asset string) decimal.Decimal { return b[asset] }

type fakeBroadcaster struct {
	mu      sync.Mutex
	calls   []gateway.Transfer
	baseURL string
	err     error
	started chan struct{} // 非 nil 时：进入后发信号并等待 release
	release chan struct{}
}

func (f *fakeBroadcaster) Submit(_ context.Context, baseURL string, tx gateway.Transfer) error {
	f.mu.Lock()
	f.baseURL = baseURL
	f.calls = append(f.calls, tx)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	return f.err
}

func intPtr(v int) *int { return &v }

func testAppConfig() config.AppConfig {
	return config.AppConfig{
		Env:  "test",
		Feed: config.FeedConfig{URL: "wss://feed.example", ReconnectSec: 5},
		Markets: map[string]config.MarketConfig{
			"clsk/lsk": {
				Assets:                []string{"clsk", "lsk"},
				PriceDecimalPrecision: intPtr(2),
				Chains: map[string]config.ChainConfig{
					"clsk": {WalletAddress: "dex-clsk-addr", MinOrderAmount: 1000000000, ExchangeFeeBase: 10000000},
					"lsk":  {WalletAddress: "dex-lsk-addr", MinOrderAmount: 1000000000, ExchangeFeeBase: 10000000},
				},
			},
		},
		Assets: map[string]config.AssetConfig{
			"clsk": {UnitValue: 100000000, APIURL: "https://clsk.example/api"},
			"lsk":  {UnitValue: 100000000, APIURL: "https://lsk.example/api"},
		},
		Wallet: map[string]config.WalletConfig{
			"clsk": {Address: "my-clsk-addr"},
			"lsk":  {Address: "my-lsk-addr"},
		},
	}
}

func newTestEngine(t *testing.T, bc Broadcaster) *Engine {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)

	eng, err := New(
		Config{MarketID: "clsk/lsk", App: testAppConfig()},
		Components{
			MarketData: market.NewService(),
			Balances:   fakeBalances{"clsk": decimal.RequireFromString("120.5"), "lsk": decimal.RequireFromString("34")},
			Broadcast:  bc,
			Logger:     log,
		},
	)
	require.NoError(t, err)
	return eng
}

func feedBook(t *testing.T, eng *Engine) {
	t.Helper()
	eng.OnBookSnapshot("clsk/lsk", market.RawBook{
		Bids: []market.RawEntry{
			{Price: decimal.RequireFromString("10"), Amount: decimal.RequireFromString("5")},
			{Price: decimal.RequireFromString("9"), Amount: decimal.RequireFromString("3")},
		},
		Asks: []market.RawEntry{
			{Price: decimal.RequireFromString("11"), Amount: decimal.RequireFromString("4")},
		},
	})
}

func TestNewRequiresKnownMarket(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	_, err = New(
		Config{MarketID: "btc/usd", App: testAppConfig()},
		Components{MarketData: market.NewService(), Balances: fakeBalances{}, Broadcast: &fakeBroadcaster{}, Logger: log},
	)
	assert.ErrorIs(t, err, ErrUnknownMarket)
}

func TestEstimateWithoutBookData(t *testing.T) {
	eng := newTestEngine(t, &fakeBroadcaster{})
	_, err := eng.EstimateOrder(market.SideAsk, order.ModeMarket, "5", "")
	assert.ErrorIs(t, err, ErrNoBookData)
}

func TestEstimateSellerAgainstBids(t *testing.T) {
	eng := newTestEngine(t, &fakeBroadcaster{})
	feedBook(t, eng)

	est, err := eng.EstimateOrder(market.SideAsk, order.ModeMarket, "7", "")
	require.NoError(t, err)
	// 5@10 + 2@9 = 68
	assert.Equal(t, order.FullMatch, est.Status)
	assert.True(t, est.EstimatedReturns.Equal(decimal.RequireFromString("68")), est.EstimatedReturns.String())
	assert.Equal(t, "LSK", est.AssetExchanged)
	assert.Equal(t, "CLSK", est.AssetExchangedAgainst)
}

func TestEstimateBuyerAgainstAsks(t *testing.T) {
	eng := newTestEngine(t, &fakeBroadcaster{})
	feedBook(t, eng)

	est, err := eng.EstimateOrder(market.SideBid, order.ModeMarket, "22", "")
	require.NoError(t, err)
	// 22 计价币吃 11 价位：容量 44，全部成交换得 2 基础币
	assert.Equal(t, order.FullMatch, est.Status)
	assert.True(t, est.EstimatedReturns.Equal(decimal.RequireFromString("2")), est.EstimatedReturns.String())
	assert.Equal(t, "CLSK", est.AssetExchanged)
	assert.Equal(t, "LSK", est.AssetExchangedAgainst)
}

func TestEstimateTreatsUnparseableAmountAsZero(t *testing.T) {
	eng := newTestEngine(t, &fakeBroadcaster{})
	feedBook(t, eng)

	est, err := eng.EstimateOrder(market.SideAsk, order.ModeMarket, "abc", "")
	require.NoError(t, err)
	assert.Equal(t, order.NoMatch, est.Status)
	assert.True(t, est.EstimatedReturns.IsZero())
}

func TestEstimateUpdatesStats(t *testing.T) {
	eng := newTestEngine(t, &fakeBroadcaster{})
	feedBook(t, eng)

	_, err := eng.EstimateOrder(market.SideAsk, order.ModeMarket, "1", "")
	require.NoError(t, err)
	stats := eng.Stats()
	assert.Equal(t, int64(1), stats.TotalEstimates)
	assert.False(t, stats.LastEstimateTime.IsZero())
}

func TestSubmitHappyPath(t *testing.T) {
	bc := &fakeBroadcaster{}
	eng := newTestEngine(t, bc)

	outcome, err := eng.Submit(context.Background(), order.Request{
		Side: market.SideAsk, Mode: order.ModeLimit, Amount: "12.5", Price: "1.25",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Validation.OK)

	require.Len(t, bc.calls, 1)
	assert.Equal(t, "https://clsk.example/api", bc.baseURL)
	assert.Equal(t, "1250000000", bc.calls[0].Amount)
	assert.Equal(t, "dex-clsk-addr", bc.calls[0].RecipientID)
	assert.Equal(t, "lsk,limit,1.25,my-lsk-addr", bc.calls[0].Data)

	stats := eng.Stats()
	assert.Equal(t, int64(1), stats.TotalSubmissions)
	assert.Equal(t, int64(0), stats.TotalRejects)
}

func TestSubmitBidSpendsQuoteAsset(t *testing.T) {
	bc := &fakeBroadcaster{}
	eng := newTestEngine(t, bc)

	outcome, err := eng.Submit(context.Background(), order.Request{
		Side: market.SideBid, Mode: order.ModeMarket, Amount: "20",
	})
	require.NoError(t, err)
	require.True(t, outcome.Validation.OK)

	require.Len(t, bc.calls, 1)
	// 买方付出计价资产，走 lsk 链
	assert.Equal(t, "https://lsk.example/api", bc.baseURL)
	assert.Equal(t, "dex-lsk-addr", bc.calls[0].RecipientID)
	assert.Equal(t, "clsk,market,my-clsk-addr", bc.calls[0].Data)
}

func TestSubmitValidationRejectIsNotAnError(t *testing.T) {
	bc := &fakeBroadcaster{}
	eng := newTestEngine(t, bc)

	outcome, err := eng.Submit(context.Background(), order.Request{
		Side: market.SideAsk, Mode: order.ModeMarket, Amount: "999999",
	})
	require.NoError(t, err)
	assert.False(t, outcome.Validation.OK)
	assert.Equal(t, "Insufficient balance!", outcome.Validation.Err("amount"))
	assert.Empty(t, bc.calls)
	assert.Equal(t, int64(1), eng.Stats().TotalRejects)
}

func TestSubmitBalanceNetsOutBaseFee(t *testing.T) {
	bc := &fakeBroadcaster{}
	eng := newTestEngine(t, bc)

	// 余额 120.5，基础手续费 0.1，有效余额 120.4
	outcome, err := eng.Submit(context.Background(), order.Request{
		Side: market.SideAsk, Mode: order.ModeMarket, Amount: "120.4",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Validation.OK)

	// 120.41 超出有效余额
	outcome, err = eng.Submit(context.Background(), order.Request{
		Side: market.SideAsk, Mode: order.ModeMarket, Amount: "120.41",
	})
	require.NoError(t, err)
	assert.Equal(t, "Insufficient balance!", outcome.Validation.Err("amount"))
}

func TestSubmitBroadcastFailureSurfacesOutcome(t *testing.T) {
	bc := &fakeBroadcaster{err: errors.New("node unreachable")}
	eng := newTestEngine(t, bc)

	outcome, err := eng.Submit(context.Background(), order.Request{
		Side: market.SideAsk, Mode: order.ModeMarket, Amount: "15",
	})
	require.Error(t, err)
	// 失败时仍返回已构造的负载，供调用方记账
	assert.Equal(t, "1500000000", outcome.Transfer.Amount)
	assert.Equal(t, int64(1), eng.Stats().TotalErrors)
	assert.Equal(t, int64(0), eng.Stats().TotalSubmissions)
}

func TestSubmitSingleInFlightPerSide(t *testing.T) {
	bc := &fakeBroadcaster{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	eng := newTestEngine(t, bc)

	done := make(chan error, 1)
	go func() {
		_, err := eng.Submit(context.Background(), order.Request{
			Side: market.SideAsk, Mode: order.ModeMarket, Amount: "15",
		})
		done <- err
	}()
	<-bc.started

	_, err := eng.Submit(context.Background(), order.Request{
		Side: market.SideAsk, Mode: order.ModeMarket, Amount: "15",
	})
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(bc.release)
	require.NoError(t, <-done)

	// 释放后同方向可再次提交
	bc.started, bc.release = nil, nil
	_, err = eng.Submit(context.Background(), order.Request{
		Side: market.SideAsk, Mode: order.ModeMarket, Amount: "15",
	})
	assert.NoError(t, err)
}

func TestSubmitOppositeSideNotBlocked(t *testing.T) {
	bc := &fakeBroadcaster{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	eng := newTestEngine(t, bc)

	done := make(chan error, 1)
	go func() {
		_, err := eng.Submit(context.Background(), order.Request{
			Side: market.SideAsk, Mode: order.ModeMarket, Amount: "15",
		})
		done <- err
	}()
	<-bc.started

	// 对侧门闩独立；fake 会再次阻塞，先占住 started 再放行两边
	go func() {
		<-bc.started
	}()
	bidDone := make(chan error, 1)
	go func() {
		_, err := eng.Submit(context.Background(), order.Request{
			Side: market.SideBid, Mode: order.ModeMarket, Amount: "15",
		})
		bidDone <- err
	}()

	time.Sleep(20 * time.Millisecond)
	close(bc.release)
	require.NoError(t, <-done)
	require.NoError(t, <-bidDone)
}

func TestApplyConfigRejectsVanishedMarket(t *testing.T) {
	eng := newTestEngine(t, &fakeBroadcaster{})

	next := testAppConfig()
	delete(next.Markets, "clsk/lsk")
	assert.ErrorIs(t, eng.ApplyConfig(next), ErrUnknownMarket)

	// 市场仍在时正常切换
	next = testAppConfig()
	prec := 4
	mkt := next.Markets["clsk/lsk"]
	mkt.PriceDecimalPrecision = &prec
	next.Markets["clsk/lsk"] = mkt
	require.NoError(t, eng.ApplyConfig(next))

	outcome, err := eng.Submit(context.Background(), order.Request{
		Side: market.SideAsk, Mode: order.ModeLimit, Amount: "15", Price: "1.2345",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Validation.OK)
}

func TestMalformedSnapshotClearsBook(t *testing.T) {
	eng := newTestEngine(t, &fakeBroadcaster{})
	feedBook(t, eng)

	eng.OnBookSnapshot("clsk/lsk", market.RawBook{
		Bids: []market.RawEntry{{Price: decimal.RequireFromString("-1"), Amount: decimal.RequireFromString("1")}},
	})
	_, err := eng.EstimateOrder(market.SideAsk, order.ModeMarket, "1", "")
	assert.ErrorIs(t, err, ErrNoBookData)
}
