package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSArg identifies one subscription channel/instrument pair.
type WSArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId,omitempty"`
}

type wsSubscribe struct {
	Op   string  `json:"op"`
	Args []WSArg `json:"args"`
}

// WSEnvelope is the common shape of OKX public/business push messages:
// either an event ack ({"event":"subscribe",...}) or a data push
// ({"arg":{...},"action":"snapshot"|"update","data":[...]}).
type WSEnvelope struct {
	Event   string          `json:"event,omitempty"`
	Code    string          `json:"code,omitempty"`
	Msg     string          `json:"msg,omitempty"`
	Arg     WSArg           `json:"arg"`
	Action  string          `json:"action,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Session is a dialed, subscribed WebSocket connection to one OKX public
// or business endpoint. The collector owns reconnect/backoff; Session just
// dials once, subscribes, and streams until Close or a read error.
type Session struct {
	url  string
	args []WSArg
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu chan struct{}
}

// Dial connects to url and subscribes to args. Callers are responsible for
// reconnecting (with backoff) on a returned read error, per the collector's
// supervised-session design.
func Dial(ctx context.Context, url string, args []WSArg, logger zerolog.Logger) (*Session, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("okx ws dial %s: %w", url, err)
	}

	s := &Session{url: url, args: args, conn: conn, log: logger.With().Str("subsystem", "okx-ws").Str("url", url).Logger(), writeMu: make(chan struct{}, 1)}
	s.writeMu <- struct{}{}

	if err := s.subscribe(args); err != nil {
		conn.Close()
		return nil, err
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(45 * time.Second))
	})
	conn.SetReadDeadline(time.Now().Add(45 * time.Second))

	return s, nil
}

func (s *Session) subscribe(args []WSArg) error {
	msg := wsSubscribe{Op: "subscribe", Args: args}
	return s.writeJSON(msg)
}

func (s *Session) writeJSON(v any) error {
	<-s.writeMu
	defer func() { s.writeMu <- struct{}{} }()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(v)
}

// Ping sends a text "ping" frame, matching OKX's application-level
// keepalive convention (the server replies with a "pong" text frame).
func (s *Session) Ping() error {
	<-s.writeMu
	defer func() { s.writeMu <- struct{}{} }()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, []byte("ping"))
}

// ReadLoop blocks reading frames and invokes onMessage for each decoded
// envelope, until the connection errors or ctx is cancelled. It returns the
// terminal error (nil only if ctx was cancelled).
func (s *Session) ReadLoop(ctx context.Context, onMessage func(WSEnvelope)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("okx ws read: %w", err)
		}
		if string(raw) == "pong" {
			continue
		}

		var env WSEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.log.Warn().Err(err).Msg("okx ws: malformed frame")
			continue
		}
		if env.Event == "error" {
			s.log.Error().Str("code", env.Code).Str("msg", env.Msg).Msg("okx ws: subscription error")
			continue
		}
		onMessage(env)
	}
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
