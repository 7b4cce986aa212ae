package upstream

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/Jasmitsingh01/Trading-sub001/pkg/models"
)

// handleFrame decodes one raw payload from the feed. Trade frames carry an
// array of ticks, each dispatched individually. Malformed or unrecognized
// frames are logged and dropped; they never affect connection state.
func (l *Link) handleFrame(data []byte) {
	var msg models.FeedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		l.logger.Warn("unparseable upstream frame",
			zap.Error(err),
			zap.Int("bytes", len(data)),
		)
		return
	}

	l.msgCount.Add(1)
	l.lastMsgMs.Store(time.Now().UnixMilli())

	switch msg.Type {
	case "trade":
		for _, ft := range msg.Data {
			l.events.HandleUpstreamTrade(ft.ToTrade())
		}
	case "ping":
		l.logger.Debug("upstream ping")
	case "error":
		l.events.HandleUpstreamError(msg.Msg)
	default:
		l.logger.Warn("unrecognized upstream frame type", zap.String("type", msg.Type))
	}
}
