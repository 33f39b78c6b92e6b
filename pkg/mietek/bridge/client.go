// Package bridge owns the WhatsApp side of the assistant: it receives
// messages into the durable queue and delivers completed responses back.
// It never talks to the AI; the processor does that through the queue.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the session store.

	"github.com/mietekbot/mietek/pkg/mietek/config"
	"github.com/mietekbot/mietek/pkg/mietek/store"
)

var deviceSuffix = regexp.MustCompile(`:\d+@`)

// normalizeJID drops the device part of a JID string so different devices
// of the same account compare equal.
func normalizeJID(jid string) string {
	return deviceSuffix.ReplaceAllString(jid, "@")
}

// Client connects to WhatsApp and feeds inbound messages into the queue.
type Client struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger

	wa       *whatsmeow.Client
	trigger  *regexp.Regexp
	ownerLID string

	// typingJID is the chat currently shown a composing indicator.
	typingJID types.JID
}

// NewClient creates a Client. Connect must be called before use.
func NewClient(cfg *config.Config, st *store.Store, logger *slog.Logger) *Client {
	return &Client{
		cfg:     cfg,
		store:   st,
		logger:  logger.With("component", "bridge"),
		trigger: regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(cfg.TriggerWord) + `\s*`),
	}
}

// Connect opens the whatsmeow session. On first run it prints a QR code
// to the terminal and blocks until the phone scans it.
func (c *Client) Connect(ctx context.Context) error {
	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", c.cfg.SessionStorePath()),
		waLog.Noop)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("getting device: %w", err)
	}

	wastore.SetOSInfo(c.cfg.BotName, [3]uint32{1, 0, 0})

	c.wa = whatsmeow.NewClient(device, waLog.Noop)
	c.wa.AddEventHandler(c.handleEvent)
	c.wa.EnableAutoReconnect = true

	if c.wa.Store.ID == nil {
		if err := c.loginWithQR(ctx); err != nil {
			return fmt.Errorf("QR login: %w", err)
		}
	} else {
		if err := c.wa.Connect(); err != nil {
			return fmt.Errorf("connecting: %w", err)
		}
	}

	if lid := c.wa.Store.LID; !lid.IsEmpty() {
		c.ownerLID = normalizeJID(lid.String())
		c.logger.Info("owner LID resolved", "lid", c.ownerLID)
	}

	c.logger.Info("whatsapp connected", "jid", c.wa.Store.ID.String())
	_ = c.store.Logs.Append("info", "bridge", "whatsapp connected")
	return nil
}

// loginWithQR runs the first-time pairing flow, rendering QR codes in the
// terminal until the phone links or the context ends.
func (c *Client) loginWithQR(ctx context.Context) error {
	qrChan, err := c.wa.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("connecting for QR: %w", err)
	}

	c.logger.Info("no existing session, scan the QR code with WhatsApp")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("QR channel closed unexpectedly")
			}
			switch evt.Event {
			case "code":
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			case "success":
				c.logger.Info("whatsapp login successful")
				return nil
			case "timeout":
				return fmt.Errorf("QR scan timed out")
			}
		}
	}
}

// Disconnect closes the WhatsApp connection.
func (c *Client) Disconnect() {
	if c.wa != nil {
		c.wa.Disconnect()
	}
}

func (c *Client) handleEvent(evt any) {
	switch e := evt.(type) {
	case *events.Message:
		c.handleMessage(e)
	case *events.LoggedOut:
		c.logger.Error("logged out from WhatsApp, delete the session database and pair again")
	}
}

// handleMessage filters an inbound message and enqueues it. Two paths get
// queued: the owner's self-chat, and trigger-word invocations written by
// the owner in any chat (the external one-shot path). Everything else is
// dropped.
func (c *Client) handleMessage(evt *events.Message) {
	if evt.Info.Chat.Server == types.BroadcastServer {
		return
	}

	rawText := extractText(evt)
	if strings.TrimSpace(rawText) == "" {
		return
	}

	chatJID := evt.Info.Chat.String()

	// The owner talks to the bot from their own account, so nearly every
	// interesting message has IsFromMe set. Trigger-word messages are
	// honored from any chat, but only when the owner wrote them.
	triggerMatch := c.trigger.FindString(rawText)
	isTrigger := triggerMatch != "" && evt.Info.IsFromMe

	if !isTrigger {
		if evt.Info.Chat.Server == types.GroupServer {
			return
		}
		if !c.isOwnerChat(chatJID) {
			c.logger.Warn("ignored message from non-owner", "chat", chatJID)
			return
		}
	}

	text := strings.TrimSpace(rawText)
	if isTrigger {
		text = strings.TrimSpace(rawText[len(triggerMatch):])
	}
	if text == "" {
		return
	}

	id, err := c.store.Queue.Enqueue(string(evt.Info.ID), chatJID, text)
	if err != nil {
		c.logger.Error("failed to queue message", "error", err)
		return
	}
	c.logger.Info("queued message",
		"id", id, "chat", chatJID, "trigger", isTrigger, "text", truncate(text, 100))
}

// isOwnerChat matches a chat JID against the configured owner JID or the
// account's LID alias.
func (c *Client) isOwnerChat(chatJID string) bool {
	if c.cfg.OwnerJID == "" {
		return false
	}
	norm := normalizeJID(chatJID)
	if norm == normalizeJID(c.cfg.OwnerJID) {
		return true
	}
	return c.ownerLID != "" && norm == c.ownerLID
}

// extractText pulls the text content from the message, including media
// captions.
func extractText(evt *events.Message) string {
	msg := evt.Message
	if msg == nil {
		return ""
	}
	if msg.Conversation != nil {
		return msg.GetConversation()
	}
	if ext := msg.ExtendedTextMessage; ext != nil {
		return ext.GetText()
	}
	if img := msg.ImageMessage; img != nil {
		return img.GetCaption()
	}
	if vid := msg.VideoMessage; vid != nil {
		return vid.GetCaption()
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
