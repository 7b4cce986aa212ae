package relay_test

import (
	"testing"

	"github.com/Jasmitsingh01/Trading-sub001/cmd/relay/internal/relay"
	"github.com/Jasmitsingh01/Trading-sub001/pkg/models"
)

func TestCache_LastWriteWins(t *testing.T) {
	c := relay.NewPriceCache()

	c.Update(models.Trade{Symbol: "EURUSD", Price: 1.0810, Timestamp: 1, Volume: 10})
	c.Update(models.Trade{Symbol: "EURUSD", Price: 1.0821, Timestamp: 2, Volume: 100})

	got, ok := c.Get("EURUSD")
	if !ok {
		t.Fatal("expected cached trade")
	}
	if got.Price != 1.0821 || got.Timestamp != 2 {
		t.Errorf("expected latest trade to win, got %+v", got)
	}
}

func TestCache_GetMissing(t *testing.T) {
	c := relay.NewPriceCache()
	if _, ok := c.Get("AAPL"); ok {
		t.Error("expected miss for unknown symbol")
	}
}

func TestCache_SnapshotIsCopy(t *testing.T) {
	c := relay.NewPriceCache()
	if snap := c.SnapshotAll(); snap != nil {
		t.Errorf("expected nil snapshot for empty cache, got %v", snap)
	}

	c.Update(models.Trade{Symbol: "AAPL", Price: 150})
	snap := c.SnapshotAll()
	if len(snap) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(snap))
	}

	snap[0].Price = 0
	got, _ := c.Get("AAPL")
	if got.Price != 150 {
		t.Error("snapshot mutation leaked into cache state")
	}
}

func TestCache_Evict(t *testing.T) {
	c := relay.NewPriceCache()
	c.Update(models.Trade{Symbol: "AAPL", Price: 150})
	c.Evict("AAPL")
	if _, ok := c.Get("AAPL"); ok {
		t.Error("expected entry to be gone after evict")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}

	// Evicting an absent symbol is a no-op.
	c.Evict("TSLA")
}
