package models

// Trade is a single market tick as relayed to downstream clients.
type Trade struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // unix millis
	Volume    float64 `json:"volume"`
}

// FeedTrade is one element of a trade frame in the upstream provider's
// compact wire format.
type FeedTrade struct {
	Symbol    string  `json:"s"`
	Price     float64 `json:"p"`
	Timestamp int64   `json:"t"` // unix millis
	Volume    float64 `json:"v"`
}

// FeedMessage is the envelope for every frame the upstream feed emits.
// Type is one of "trade", "ping" or "error".
type FeedMessage struct {
	Type string      `json:"type"`
	Data []FeedTrade `json:"data,omitempty"`
	Msg  string      `json:"msg,omitempty"`
}

func (ft FeedTrade) ToTrade() Trade {
	return Trade{
		Symbol:    ft.Symbol,
		Price:     ft.Price,
		Timestamp: ft.Timestamp,
		Volume:    ft.Volume,
	}
}

// FeedCommand is an outbound subscribe/unsubscribe request to the feed.
type FeedCommand struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}
