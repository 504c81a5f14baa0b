package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"visionengine/internal/config"
	"visionengine/internal/logger"
	"visionengine/internal/stream"
)

const wsWriteTimeout = 10 * time.Second

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebcamWebsocketHandler runs a webcam session over a WebSocket. Every message
// is one JSON frame event; the stream ends with the done message. The camera
// is claimed before the upgrade so busy and unavailable errors stay plain HTTP.
func WebcamWebsocketHandler(engine *stream.Engine, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := openWebcam(engine, cfg, r)
		if err != nil {
			writeWebcamError(w, err)
			return
		}

		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			session.Close()
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer connection.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		logger.Info("Webcam viewer connected from %s", r.RemoteAddr)

		// The client never sends anything meaningful; reading only detects the close.
		go func() {
			defer cancel()
			for {
				if _, _, err := connection.ReadMessage(); err != nil {
					if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						logger.Info("Webcam viewer disconnected normally")
					} else {
						logger.Debug("Webcam viewer disconnected: %v", err)
					}
					return
				}
			}
		}()

		err = session.Run(ctx, func(v any) error {
			connection.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			return connection.WriteJSON(v)
		})
		if err != nil {
			logger.Warning("Webcam websocket session ended with error: %v", err)
		}

		connection.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		_ = connection.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
}
