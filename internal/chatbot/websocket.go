package chatbot

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"profitdash/internal/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 8 * 1024
	FrameTyping    = "typing"
	FrameMessage   = "message"
	FrameError     = "error"
	frameHeartbeat = "heartbeat"
)

// Frame is what the websocket sends to the browser.
type Frame struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// inbound is what the browser sends.
type inbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// WSHandler serves the chat over a websocket for the user resolved by userID.
type WSHandler struct {
	bot      *Bot
	userID   func(*http.Request) (string, bool)
	upgrader websocket.Upgrader
}

func NewWSHandler(bot *Bot, userID func(*http.Request) (string, bool)) *WSHandler {
	return &WSHandler{
		bot:    bot,
		userID: userID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.bot.logger.Warn("WebSocket upgrade failed", log.FieldUserID, userID, log.FieldError, err)
		return
	}
	if h.bot.observer != nil {
		h.bot.observer.WebsocketOpened()
		defer h.bot.observer.WebsocketClosed()
	}

	s := &wsSession{conn: conn, bot: h.bot, userID: userID, logger: h.bot.logger.WithUser(userID)}
	s.run(r.Context())
}

type wsSession struct {
	conn   *websocket.Conn
	bot    *Bot
	userID string
	logger *log.Logger

	writeMu sync.Mutex
}

func (s *wsSession) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer s.conn.Close()

	started := time.Now()
	s.logger.Debug("Chat websocket connected")
	defer func() {
		s.logger.Debug("Chat websocket disconnected", log.FieldDuration, time.Since(started).Milliseconds())
	}()

	go s.ping(ctx)

	for _, m := range s.bot.History(s.userID) {
		if err := s.write(Frame{Type: FrameMessage, Message: &m}); err != nil {
			return
		}
	}

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inbound
		if err := s.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Warn("Unexpected websocket close", log.FieldError, err)
			}
			return
		}
		if in.Type == frameHeartbeat {
			_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
			continue
		}
		if err := s.handle(ctx, in.Text); err != nil {
			return
		}
	}
}

// handle answers one chat message. Only write failures end the session.
func (s *wsSession) handle(ctx context.Context, text string) error {
	sent, err := s.bot.Post(s.userID, text)
	if err != nil {
		return s.write(Frame{Type: FrameError, Error: err.Error()})
	}
	if err := s.write(Frame{Type: FrameMessage, Message: &sent}); err != nil {
		return err
	}
	if err := s.write(Frame{Type: FrameTyping}); err != nil {
		return err
	}
	reply, err := s.bot.Reply(ctx, s.userID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return s.write(Frame{Type: FrameError, Error: err.Error()})
	}
	return s.write(Frame{Type: FrameMessage, Message: &reply})
}

func (s *wsSession) write(f Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(f)
}

func (s *wsSession) ping(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Unblocks the read loop when the server shuts down.
			s.conn.Close()
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
