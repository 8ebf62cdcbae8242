package gateway

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseBookSnapshot(t *testing.T) {
	msg := []byte(`{
		"market": "clsk/lsk",
		"bids": [{"price": "10", "amount": "5"}, {"price": 9.5, "amount": 2}],
		"asks": [{"price": "10.5", "amount": "3"}]
	}`)
	marketID, raw, err := ParseBookSnapshot(msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if marketID != "clsk/lsk" {
		t.Fatalf("wrong market id: %s", marketID)
	}
	if len(raw.Bids) != 2 || len(raw.Asks) != 1 {
		t.Fatalf("wrong entry counts: %d bids %d asks", len(raw.Bids), len(raw.Asks))
	}
	if !raw.Bids[1].Price.Equal(decimal.RequireFromString("9.5")) {
		t.Fatalf("numeric literal price lost precision: %s", raw.Bids[1].Price)
	}
	if !raw.Asks[0].Amount.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("ask amount not parsed: %s", raw.Asks[0].Amount)
	}
}

func TestParseBookSnapshotEmptySides(t *testing.T) {
	marketID, raw, err := ParseBookSnapshot([]byte(`{"market": "clsk/lsk"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if marketID != "clsk/lsk" || len(raw.Bids) != 0 || len(raw.Asks) != 0 {
		t.Fatalf("empty snapshot should yield empty book: %+v", raw)
	}
}

func TestParseBookSnapshotRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		msg  string
	}{
		{"not json", `{{`},
		{"missing market", `{"bids": [], "asks": []}`},
		{"bad bid price", `{"market": "m", "bids": [{"price": "abc", "amount": "1"}]}`},
		{"bad ask amount", `{"market": "m", "asks": [{"price": "1", "amount": "x"}]}`},
	}
	for _, tc := range cases {
		if _, _, err := ParseBookSnapshot([]byte(tc.msg)); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestBookFeedSubscribe(t *testing.T) {
	feed := NewBookFeed("wss://dex.example")
	if err := feed.Subscribe(""); err == nil {
		t.Fatalf("empty market id must be rejected")
	}
	if err := feed.Subscribe("clsk/lsk"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := (&BookFeed{Dialer: feed.Dialer}).Run(nil); err == nil {
		t.Fatalf("run without subscriptions must fail")
	}
}
