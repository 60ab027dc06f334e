package main

import (
	"encoding/json"
	"flag"
	"log"
	"strings"

	"github.com/gorilla/websocket"

	"somnarium.ai/internal/protocol"
)

func feedCmd(args []string, logger *log.Logger) {
	fs := flag.NewFlagSet("feed", flag.ExitOnError)
	url := fs.String("url", "ws://127.0.0.1:3000/v1/feed", "feed websocket url")
	backlog := fs.Int("backlog", 0, "recent codes to replay first (0: server default, <0: none)")
	_ = fs.Parse(args)

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version, Backlog: *backlog}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	ctx, cancel := interruptContext()
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Printf("read: %v", err)
			}
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeBacklog:
			var b protocol.BacklogMsg
			if err := json.Unmarshal(msg, &b); err != nil {
				continue
			}
			logger.Printf("BACKLOG %d", len(b.Concoctions))
			for _, c := range b.Concoctions {
				logConcoction(logger, "  ", c)
			}
		case protocol.TypeConcoctionCreated:
			var ev protocol.ConcoctionCreatedMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			logConcoction(logger, "CREATED ", ev.Concoction)
		}
	}
}

func logConcoction(logger *log.Logger, prefix string, c protocol.ConcoctionDTO) {
	slugs := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		slugs = append(slugs, it.Slug)
	}
	logger.Printf("%s%s %s", prefix, c.Code, strings.Join(slugs, ", "))
}
