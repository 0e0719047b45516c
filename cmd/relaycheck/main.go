package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/park285/boardsight/internal/relay"
)

// relaycheck verifies the automation endpoint before a session: it calls the
// webhook health route, opens the websocket and sends a dry no-op payload.
func main() {
	baseURL := os.Getenv("RELAY_URL")
	wsURL := os.Getenv("RELAY_WS_URL")
	token := os.Getenv("RELAY_TOKEN")

	if baseURL == "" && wsURL == "" {
		log.Fatal("RELAY_URL or RELAY_WS_URL is required")
	}

	headers := func() map[string]string {
		m := map[string]string{}
		if token != "" {
			m["X-Relay-Token"] = token
		}
		return m
	}

	if baseURL != "" {
		client := relay.NewClient(baseURL,
			relay.WithHeaderProvider(headers),
			relay.WithTimeout(8*time.Second),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Health(ctx); err != nil {
			log.Printf("/health error: %v", err)
		} else {
			log.Printf("/health ok: %s", baseURL)
		}
		cancel()
	}

	if wsURL == "" {
		log.Println("RELAY_WS_URL not set; skipping WS check")
		return
	}

	ws := relay.NewWebSocket(wsURL, 0, nil)
	ws.SetHeaderProvider(headers)
	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}
	defer ws.Close(context.Background())
	log.Printf("WS state: %s", ws.State())

	ping := relay.MovePayload{Type: "ping", CycleID: "relaycheck"}
	if err := ws.WriteJSON(cctx, ping); err != nil {
		log.Printf("WS write error: %v", err)
		return
	}
	select {
	case ack := <-ws.Acks():
		log.Printf("WS ack: ok=%v error=%q", ack.OK, ack.Error)
	case <-time.After(5 * time.Second):
		log.Println("WS: no ack within 5s")
	}
}
