package chatbot

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWSHandler_Conversation(t *testing.T) {
	obs := &countingObserver{}
	bot := NewBot(10*time.Millisecond, nil, obs)
	h := NewWSHandler(bot, func(*http.Request) (string, bool) { return "u1", true })
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)

	greeting := readFrame(t, conn)
	assert.Equal(t, FrameMessage, greeting.Type)
	require.NotNil(t, greeting.Message)
	assert.Equal(t, Greeting, greeting.Message.Text)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "heartbeat"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"text": "how are sales?"}))

	echo := readFrame(t, conn)
	assert.Equal(t, FrameMessage, echo.Type)
	assert.Equal(t, SenderUser, echo.Message.Sender)
	assert.Equal(t, "how are sales?", echo.Message.Text)

	assert.Equal(t, FrameTyping, readFrame(t, conn).Type)

	reply := readFrame(t, conn)
	assert.Equal(t, FrameMessage, reply.Type)
	assert.Equal(t, DemoReply, reply.Message.Text)

	require.NoError(t, conn.WriteJSON(map[string]string{"text": "  "}))
	bad := readFrame(t, conn)
	assert.Equal(t, FrameError, bad.Type)
	assert.Equal(t, ErrEmptyMessage.Error(), bad.Error)

	_, open, _ := obs.counts()
	assert.Equal(t, 1, open)

	conn.Close()
	assert.Eventually(t, func() bool {
		_, _, closed := obs.counts()
		return closed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWSHandler_Unauthenticated(t *testing.T) {
	h := NewWSHandler(NewBot(0, nil, nil), func(*http.Request) (string, bool) { return "", false })
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ws/chat", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWSHandler_HistoryReplayed(t *testing.T) {
	bot := NewBot(0, nil, nil)
	_, _, err := bot.Send(t.Context(), "u1", "earlier")
	require.NoError(t, err)

	srv := httptest.NewServer(NewWSHandler(bot, func(*http.Request) (string, bool) { return "u1", true }))
	defer srv.Close()
	conn := dial(t, srv)

	var texts []string
	for i := 0; i < 3; i++ {
		texts = append(texts, readFrame(t, conn).Message.Text)
	}
	assert.Equal(t, []string{Greeting, "earlier", DemoReply}, texts)
}
