package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

// chunkDelay spaces multi-chunk sends so WhatsApp keeps the order.
const chunkDelay = 500 * time.Millisecond

// ChunkMessage splits text into pieces no longer than limit, preferring a
// newline boundary in the upper half of the window, then a space boundary
// in the upper 70%, then a hard cut.
func ChunkMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > 0 {
		if len(remaining) <= limit {
			chunks = append(chunks, remaining)
			break
		}

		splitIdx := strings.LastIndex(remaining[:limit+1], "\n")
		if splitIdx < limit*5/10 {
			splitIdx = strings.LastIndex(remaining[:limit+1], " ")
		}
		if splitIdx < limit*3/10 {
			// Hard cut, backed off so a multi-byte rune is never split.
			splitIdx = limit
			for splitIdx > 0 && !utf8.RuneStart(remaining[splitIdx]) {
				splitIdx--
			}
			if splitIdx == 0 {
				splitIdx = limit
			}
		}

		chunks = append(chunks, remaining[:splitIdx])
		remaining = strings.TrimLeft(remaining[splitIdx:], " \n\t")
	}
	return chunks
}

// Run is the delivery loop: typing indicator upkeep, completed-response
// delivery and approved outbound sends, every poll interval.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("bridge delivery loop started")
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("bridge stopping")
			return ctx.Err()
		case <-ticker.C:
			c.maintainTyping(ctx)
			if err := c.DeliverResponses(ctx); err != nil {
				c.logger.Error("delivery error", "error", err)
			}
			if err := c.SendApprovedOutbound(ctx); err != nil {
				c.logger.Error("outbound send error", "error", err)
			}
		}
	}
}

// deliveryTarget maps a queue item's sender to the JID the response goes
// to. LID senders fall back to the owner's phone JID; system notices go to
// the owner too.
func (c *Client) deliveryTarget(senderJID string) (types.JID, error) {
	ownerNorm := normalizeJID(c.cfg.OwnerJID)
	target := ownerNorm
	if senderJID != "system" && !strings.HasSuffix(senderJID, "@lid") {
		target = normalizeJID(senderJID)
	}
	return types.ParseJID(target)
}

// DeliverResponses sends completed (or failed) responses that have not
// been delivered yet. delivered_at is stamped BEFORE sending: a crash
// mid-send loses at most one response but never duplicates one.
func (c *Client) DeliverResponses(ctx context.Context) error {
	items, err := c.store.Queue.Undelivered()
	if err != nil {
		return err
	}

	for _, item := range items {
		target, err := c.deliveryTarget(item.SenderJID)
		if err != nil {
			c.logger.Error("bad delivery target", "id", item.ID, "sender", item.SenderJID, "error", err)
			_ = c.store.Queue.MarkDelivered(item.ID)
			continue
		}

		if err := c.store.Queue.MarkDelivered(item.ID); err != nil {
			c.logger.Error("could not mark delivered", "id", item.ID, "error", err)
			continue
		}

		chunks := ChunkMessage(item.Response, c.cfg.MaxMessageLength)
		if err := c.sendChunks(ctx, target, chunks); err != nil {
			// delivered_at is already set; never retried to avoid duplicates.
			c.logger.Error("send failed, marked sent, delivery uncertain",
				"id", item.ID, "error", err)
			continue
		}
		c.logger.Info("response delivered", "id", item.ID, "chunks", len(chunks), "to", target.String())
	}
	return nil
}

// SendApprovedOutbound delivers owner-approved messages to third parties.
func (c *Client) SendApprovedOutbound(ctx context.Context) error {
	approved, err := c.store.Outbound.Approved()
	if err != nil {
		return err
	}

	for _, req := range approved {
		target := types.NewJID(req.TargetPhone, types.DefaultUserServer)
		chunks := ChunkMessage(req.Message, c.cfg.MaxMessageLength)

		if err := c.sendChunks(ctx, target, chunks); err != nil {
			c.logger.Error("outbound send failed", "id", req.ID, "error", err)
			continue
		}
		if err := c.store.Outbound.MarkSent(req.ID); err != nil {
			c.logger.Error("could not mark outbound sent", "id", req.ID, "error", err)
			continue
		}
		c.logger.Info("outbound sent", "id", req.ID, "phone", req.TargetPhone)
		_ = c.store.Logs.Append("info", "bridge", fmt.Sprintf("outbound #%d sent to %s", req.ID, req.TargetPhone))
	}
	return nil
}

func (c *Client) sendChunks(ctx context.Context, target types.JID, chunks []string) error {
	for i, chunk := range chunks {
		msg := &waE2E.Message{Conversation: proto.String(chunk)}
		if _, err := c.wa.SendMessage(ctx, target, msg); err != nil {
			return fmt.Errorf("sending chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if len(chunks) > 1 && i < len(chunks)-1 {
			time.Sleep(chunkDelay)
		}
	}
	return nil
}

// maintainTyping keeps a composing indicator up in the chat whose message
// is being processed, and drops it when the queue drains. Best effort only.
func (c *Client) maintainTyping(ctx context.Context) {
	sender, ok, err := c.store.Queue.ProcessingSender()
	if err != nil {
		return
	}

	if ok {
		target, err := c.deliveryTarget(sender)
		if err != nil {
			return
		}
		// Composing expires server-side, so re-send it every tick.
		_ = c.wa.SendChatPresence(ctx, target, types.ChatPresenceComposing, types.ChatPresenceMediaText)
		c.typingJID = target
	} else if !c.typingJID.IsEmpty() {
		_ = c.wa.SendChatPresence(ctx, c.typingJID, types.ChatPresencePaused, types.ChatPresenceMediaText)
		c.typingJID = types.JID{}
	}
}
