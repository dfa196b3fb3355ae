package main

// Event feeds.  The platform gateway can push events over a
// WebSocket connection to /events, over MQTT, or both; either way
// the payload is a JSON chat.Event with the tag left to the
// dispatcher's canonicalization.

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/groupwarden/groupwarden/chat"
	"github.com/groupwarden/groupwarden/dispatch"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// serveEvents accepts one gateway connection and feeds its events to
// the dispatcher.
func serveEvents(d *dispatch.Dispatcher, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		logger.Info("event feed connected", "remote", r.RemoteAddr)
		for {
			_, bs, err := conn.ReadMessage()
			if err != nil {
				logger.Info("event feed closed", "remote", r.RemoteAddr, "err", err)
				return
			}
			var ev chat.Event
			if err := json.Unmarshal(bs, &ev); err != nil {
				logger.Warn("bad event payload", "err", err)
				continue
			}
			d.Dispatch(&ev)
		}
	}
}

// subscribeEvents feeds MQTT events to the dispatcher.
func subscribeEvents(mq mqtt.Client, topic string, d *dispatch.Dispatcher, logger *log.Logger) error {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var ev chat.Event
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			logger.Warn("bad event payload", "topic", msg.Topic(), "err", err)
			return
		}
		d.Dispatch(&ev)
	}
	tok := mq.Subscribe(topic, 1, handler)
	tok.Wait()
	return tok.Error()
}
