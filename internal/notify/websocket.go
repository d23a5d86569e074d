package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketSource subscribes to the remote API's change stream.
type WebSocketSource struct {
	url       string
	header    http.Header
	dialer    *websocket.Dialer
	reconnect time.Duration
	log       logrus.FieldLogger
}

func NewWebSocketSource(url, token string, reconnect time.Duration, log logrus.FieldLogger) *WebSocketSource {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &WebSocketSource{
		url:       url,
		header:    header,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		reconnect: reconnectDelay(reconnect),
		log:       log,
	}
}

func (s *WebSocketSource) Run(ctx context.Context, h Handler) error {
	return runWithReconnect(ctx, s.log, "websocket", s.reconnect, func(ctx context.Context) error {
		conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
		if err != nil {
			return err
		}
		defer conn.Close()
		s.log.WithField("url", s.url).Info("subscribed to change notifications")

		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-done:
			}
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			dispatch(ctx, s.log, h, data)
		}
	})
}
