package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "ledger.db")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	t0 := time.UnixMilli(1_700_000_000_000)
	entries := []Entry{
		{At: t0, Player: "p1", Op: "buy", RequestID: "r1", ItemID: "apple", Quantity: 2, Price: 21, Ref: "general"},
		{At: t0.Add(time.Second), Player: "p1", Op: "sell", RequestID: "r2", ItemID: "fish", Quantity: 1, Price: 6, Ref: "general"},
		{At: t0.Add(2 * time.Second), Player: "p2", Op: "drop", RequestID: "r3", ItemID: "logs", Quantity: 1, Ref: "f1"},
	}
	for i, e := range entries {
		seq, err := l.Record(ctx, e)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if seq != int64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, seq)
		}
	}

	got, err := l.ForPlayer(ctx, "p1", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for p1, got %d", len(got))
	}
	if got[0].Op != "sell" || got[1].Op != "buy" {
		t.Fatalf("expected newest first, got %s then %s", got[0].Op, got[1].Op)
	}
	if !got[1].At.Equal(t0) {
		t.Fatalf("timestamp not preserved: %v", got[1].At)
	}

	bought, sold, err := l.Totals(ctx, "general")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if bought != 21 || sold != 6 {
		t.Fatalf("expected 21/6, got %d/%d", bought, sold)
	}
}

func TestLedgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := l.Record(ctx, Entry{Player: "p1", Op: "pickup", RequestID: "r1", ItemID: "coins", Quantity: 5, Ref: "f9"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	l, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()
	got, err := l.ForPlayer(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Ref != "f9" {
		t.Fatalf("unexpected entries after reopen: %+v", got)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
