package market

import (
	"sync"
	"time"
)

// Service 维护各市场最新的已清洗订单簿，供估算器随时读取。
type Service struct {
	mu    sync.RWMutex
	books map[string]OrderBook
	last  map[string]time.Time
}

func NewService() *Service {
	return &Service{
		books: make(map[string]OrderBook),
		last:  make(map[string]time.Time),
	}
}

// OnRawBook 清洗并替换一个市场的快照。
// 快照非法时清除该市场数据（进入无数据状态）并返回 MalformedBookError。
func (s *Service) OnRawBook(marketID string, raw RawBook, ts time.Time) error {
	book, err := Normalize(raw)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		delete(s.books, marketID)
		delete(s.last, marketID)
		return err
	}
	s.books[marketID] = book
	s.last[marketID] = ts
	return nil
}

// Book 返回市场最新订单簿；无可用数据时 ok 为 false。
func (s *Service) Book(marketID string) (OrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[marketID]
	return b, ok
}

// Staleness 返回距上次快照的时间间隔；无数据时返回一个极大值。
func (s *Service) Staleness(marketID string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.last[marketID]
	if !ok {
		return time.Hour * 24 * 365
	}
	return time.Since(ts)
}
