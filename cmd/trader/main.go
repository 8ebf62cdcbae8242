package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dex-trader-go/config"
	"dex-trader-go/gateway"
	"dex-trader-go/infrastructure/logger"
	"dex-trader-go/internal/engine"
	"dex-trader-go/market"
	"dex-trader-go/metrics"
)

// staticBalances 在没有链上余额查询的运行模式下，用命令行注入的余额。
type staticBalances map[string]decimal.Decimal

func (b staticBalances) Balance(asset string) decimal.Decimal {
	return b[asset]
}

// parseBalances 解析 "clsk=120.5,lsk=34" 形式的余额表。
func parseBalances(s string) (staticBalances, error) {
	out := make(staticBalances)
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		asset, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("balance entry %q must be asset=value", pair)
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, err
		}
		out[strings.TrimSpace(asset)] = d
	}
	return out, nil
}

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	marketID := flag.String("market", "clsk/lsk", "交易市场")
	balances := flag.String("balances", "", "静态余额表，例如 clsk=120.5,lsk=34")
	logFormat := flag.String("logFormat", "json", "日志格式 json/console")
	reconnectSec := flag.Int("reconnectSec", 3, "行情流重连间隔（秒）")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Format = *logFormat
	lg, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer lg.Close()

	bal, err := parseBalances(*balances)
	if err != nil {
		log.Fatalf("解析余额表失败: %v", err)
	}

	monitor := metrics.New(metrics.DefaultConfig())
	if cfg.Metrics.Addr != "" {
		monitor.StartMetricsServer(cfg.Metrics.Addr)
	}

	marketData := market.NewService()
	broadcast := &gateway.BroadcastClient{
		HTTPClient: gateway.NewDefaultHTTPClient(),
		Limiter:    gateway.NewTokenBucketLimiter(2, 4),
	}

	eng, err := engine.New(engine.Config{MarketID: *marketID, App: cfg}, engine.Components{
		MarketData: marketData,
		Balances:   bal,
		Broadcast:  broadcast,
		Logger:     lg,
		Monitor:    monitor,
	})
	if err != nil {
		log.Fatalf("初始化引擎失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 配置热更新
	reloader, err := config.NewReloader(*cfgPath, config.DefaultReloadOptions(), eng.ApplyConfig)
	if err != nil {
		log.Fatalf("初始化配置热更新失败: %v", err)
	}
	if err := reloader.Start(ctx); err != nil {
		lg.Warn("Config reloader not started", zap.Error(err))
	}
	defer reloader.Stop()

	// 行情流：断线后按固定间隔重连
	go func() {
		interval := time.Duration(*reconnectSec) * time.Second
		if cfg.Feed.ReconnectSec > 0 {
			interval = time.Duration(cfg.Feed.ReconnectSec) * time.Second
		}
		for {
			feed := gateway.NewBookFeed(cfg.Feed.URL)
			if err := feed.Subscribe(*marketID); err != nil {
				lg.Error("Subscribe failed", zap.Error(err))
				return
			}
			monitor.RecordWSConnection()
			err := feed.Run(eng)
			monitor.RecordWSDisconnect()
			lg.Warn("Book feed disconnected", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	lg.Info("Trader started",
		zap.String("market", *marketID),
		zap.String("feed", cfg.Feed.URL),
		zap.String("metrics", cfg.Metrics.Addr))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	lg.Info("Trader stopped")
}
