package main

import (
	"context"
	"net/http"
	"time"

	"github.com/alim08/market_pulse/pkg/logger"
	"github.com/alim08/market_pulse/pkg/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// streamHandler upgrades to a websocket and pushes the current-price
// envelope immediately and then on every tick. Reads go through the
// cache, so connected clients add no upstream traffic.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		logger.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	id := requestIDFrom(r.Context())
	logger.Log.Info("stream client connected", zap.String("request_id", id))
	defer logger.Log.Info("stream client disconnected", zap.String("request_id", id))

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients never send data; reading only surfaces close frames and pongs.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	push := time.NewTicker(s.streamInterval)
	defer push.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(newCurrentResponse(s.market.CurrentPrice(ctx))); err != nil {
			logger.Log.Debug("stream write failed", zap.String("request_id", id), zap.Error(err))
			return
		}

		for waiting := true; waiting; {
			select {
			case <-ctx.Done():
				return
			case <-s.quit:
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-push.C:
				waiting = false
			}
		}
	}
}
