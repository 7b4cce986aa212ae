package relay

import "github.com/Jasmitsingh01/Trading-sub001/pkg/models"

// PriceCache stores the last-known trade per symbol. Entries are evicted as
// soon as a symbol loses its last subscriber, so a later subscriber never
// sees an arbitrarily stale price. Not safe for concurrent use; the Relay
// serializes access.
type PriceCache struct {
	latest map[string]models.Trade
}

func NewPriceCache() *PriceCache {
	return &PriceCache{latest: make(map[string]models.Trade)}
}

// Update overwrites the symbol's entry unconditionally (last write wins).
func (c *PriceCache) Update(t models.Trade) {
	c.latest[t.Symbol] = t
}

func (c *PriceCache) Get(symbol string) (models.Trade, bool) {
	t, ok := c.latest[symbol]
	return t, ok
}

// SnapshotAll returns a copy of every cached trade. Callers own the slice
// and cannot mutate cache state through it.
func (c *PriceCache) SnapshotAll() []models.Trade {
	if len(c.latest) == 0 {
		return nil
	}
	trades := make([]models.Trade, 0, len(c.latest))
	for _, t := range c.latest {
		trades = append(trades, t)
	}
	return trades
}

func (c *PriceCache) Evict(symbol string) {
	delete(c.latest, symbol)
}

func (c *PriceCache) Len() int {
	return len(c.latest)
}
