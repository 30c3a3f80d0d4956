// Package chatbot is the placeholder assistant of the dashboard. It keeps a
// short conversation per user and answers every question with a canned
// reply after a typing delay.
package chatbot

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"profitdash/internal/log"
)

const (
	Greeting  = "Hello! I'm your data analysis assistant. How can I help you today?"
	DemoReply = "I understand you're asking about data analysis. This is a demo response. " +
		"In a real implementation, this would connect to an AI service like OpenAI or similar."

	DefaultTypingDelay = 1500 * time.Millisecond
	MaxMessageLength   = 2000
	// maxHistory bounds a conversation; the oldest messages are dropped.
	maxHistory = 200
)

const (
	SenderBot  = "bot"
	SenderUser = "user"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
)

type Message struct {
	ID        int           `json:"id"`
	Sender    string        `json:"sender"`
	Text      string        `json:"text"`
	HTML      template.HTML `json:"html"`
	Timestamp time.Time     `json:"timestamp"`
}

// Observer counts chat traffic.
type Observer interface {
	ChatMessage()
	WebsocketOpened()
	WebsocketClosed()
}

type conversation struct {
	messages []Message
	nextID   int
}

type Bot struct {
	mu       sync.Mutex
	convs    map[string]*conversation
	delay    time.Duration
	logger   *log.Logger
	observer Observer
	now      func() time.Time
}

// NewBot returns a bot that waits delay before replying. A negative delay
// selects DefaultTypingDelay.
func NewBot(delay time.Duration, logger *log.Logger, observer Observer) *Bot {
	if delay < 0 {
		delay = DefaultTypingDelay
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Bot{
		convs:    make(map[string]*conversation),
		delay:    delay,
		logger:   logger.WithComponent(log.ComponentChatbot),
		observer: observer,
		now:      time.Now,
	}
}

// History returns the user's conversation, starting with the greeting.
func (b *Bot) History(userID string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.conversationLocked(userID)
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Send posts text and waits for the reply.
func (b *Bot) Send(ctx context.Context, userID, text string) (Message, Message, error) {
	sent, err := b.Post(userID, text)
	if err != nil {
		return Message{}, Message{}, err
	}
	reply, err := b.Reply(ctx, userID)
	if err != nil {
		return sent, Message{}, err
	}
	return sent, reply, nil
}

// Post appends the user's message to the conversation.
func (b *Bot) Post(userID, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return Message{}, ErrMessageTooLong
	}
	if b.observer != nil {
		b.observer.ChatMessage()
	}
	return b.append(userID, SenderUser, text), nil
}

// Reply waits the typing delay and appends the bot's answer. The wait ends
// early with ctx's error.
func (b *Bot) Reply(ctx context.Context, userID string) (Message, error) {
	if b.delay > 0 {
		t := time.NewTimer(b.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	return b.append(userID, SenderBot, DemoReply), nil
}

// Reset forgets the user's conversation.
func (b *Bot) Reset(userID string) {
	b.mu.Lock()
	delete(b.convs, userID)
	b.mu.Unlock()
}

// TypingDelay is the pause before each reply.
func (b *Bot) TypingDelay() time.Duration {
	return b.delay
}

func (b *Bot) append(userID, sender, text string) Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.conversationLocked(userID)
	m := b.newMessageLocked(c, sender, text)
	c.messages = append(c.messages, m)
	if len(c.messages) > maxHistory {
		c.messages = append([]Message(nil), c.messages[len(c.messages)-maxHistory:]...)
	}
	return m
}

func (b *Bot) conversationLocked(userID string) *conversation {
	c, ok := b.convs[userID]
	if !ok {
		c = &conversation{}
		c.messages = []Message{b.newMessageLocked(c, SenderBot, Greeting)}
		b.convs[userID] = c
	}
	return c
}

func (b *Bot) newMessageLocked(c *conversation, sender, text string) Message {
	c.nextID++
	return Message{
		ID:        c.nextID,
		Sender:    sender,
		Text:      text,
		HTML:      Render(text),
		Timestamp: b.now(),
	}
}

// Render converts markdown to HTML. Raw HTML in the input is dropped.
func Render(text string) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.NoEmptyLineBeforeBlock)
	r := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.SkipHTML | html.Safelink | html.HrefTargetBlank,
	})
	out := markdown.ToHTML([]byte(text), p, r)
	return template.HTML(strings.TrimSpace(string(out)))
}
