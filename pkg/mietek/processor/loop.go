package processor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mietekbot/mietek/pkg/mietek/claude"
	"github.com/mietekbot/mietek/pkg/mietek/store"
)

var deviceSuffix = regexp.MustCompile(`:\d+@`)

// isOwnerChat reports whether a queued message came from the owner's
// self-chat. LID JIDs are always the owner since the bridge only queues
// owner messages from LID senders.
func (p *Processor) isOwnerChat(senderJID string) bool {
	if strings.HasSuffix(senderJID, "@lid") {
		return true
	}
	ownerNorm := deviceSuffix.ReplaceAllString(p.cfg.OwnerJID, "@")
	senderNorm := deviceSuffix.ReplaceAllString(senderJID, "@")
	return ownerNorm != "" && senderNorm == ownerNorm
}

// Run consumes the queue until the context is cancelled. On startup it
// recovers messages stuck in processing from a previous crash and tries
// to resume the last session.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("processor started")
	_ = p.store.Logs.Append("info", "processor", "started")

	if n, err := p.store.Queue.ResetStuck(); err != nil {
		return fmt.Errorf("reset stuck messages: %w", err)
	} else if n > 0 {
		p.logger.Warn("reset stuck messages to pending", "count", n)
	}

	p.invoker.ResumeLastKnown(p.store.Queue)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := p.processNext(ctx); err != nil {
			p.logger.Error("processing loop error", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("processor stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// processNext claims and handles one message. Errors and panics are
// contained per item so a poison message cannot take the loop down.
func (p *Processor) processNext(ctx context.Context) error {
	item, err := p.store.Queue.ClaimNext()
	if err != nil {
		return err
	}
	if item == nil {
		return nil
	}

	p.logger.Info("processing message", "id", item.ID, "text", truncate(item.Text, 80))

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while processing message", "id", item.ID, "panic", r)
			p.failItem(item, fmt.Sprintf("%v", r))
		}
	}()

	if err := p.handleItem(ctx, item); err != nil {
		p.logger.Error("failed to process message", "id", item.ID, "error", err)
		p.failItem(item, err.Error())
	}
	return nil
}

func (p *Processor) failItem(item *store.QueueItem, errText string) {
	resp := "Błąd przetwarzania: " + truncate(errText, 200)
	if p.locale.Tag != "pl" {
		resp = "Processing error: " + truncate(errText, 200)
	}
	if err := p.store.Queue.Complete(item.ID, resp, false, ""); err != nil {
		p.logger.Error("could not mark message failed", "id", item.ID, "error", err)
	}
}

func (p *Processor) handleItem(ctx context.Context, item *store.QueueItem) error {
	// External chats run one-shot with a minimal context. No commands, no
	// directives, no access to the owner's session or memory.
	if !p.isOwnerChat(item.SenderJID) {
		prompt := p.buildExternalContext(item.Text)
		result := p.invoker.Invoke(ctx, prompt, claude.Options{OneShot: true})
		p.logger.Info("external message processed", "id", item.ID, "success", result.Success)
		return p.store.Queue.Complete(item.ID, result.Response, result.Success, result.SessionToken)
	}

	// Owner flow: prefix commands short-circuit the AI entirely.
	if cmd := p.HandleCommand(item.Text); cmd.Handled {
		response := cmd.Response
		if response == "" {
			response = "(no response)"
		}
		p.logger.Info("command handled", "id", item.ID, "command", truncate(item.Text, 30))
		return p.store.Queue.Complete(item.ID, response, true, "")
	}

	// /sudo lifts the tool allowlist for this one invocation.
	trimmed := strings.TrimSpace(item.Text)
	sudo := strings.HasPrefix(trimmed, "/sudo ")
	text := item.Text
	if sudo {
		text = strings.TrimPrefix(trimmed, "/sudo ")
	}

	var prompt string
	if p.invoker.Current() != "" {
		prompt = p.buildResumePrompt(text)
	} else {
		prompt = p.buildFullContext(text)
	}

	result := p.invoker.Invoke(ctx, prompt, claude.Options{Sudo: sudo})

	// A failed resume gets exactly one retry with the full context.
	if result.RetryFullContext {
		p.logger.Warn("resume failed, retrying with full context", "id", item.ID)
		result = p.invoker.Invoke(ctx, p.buildFullContext(text), claude.Options{Sudo: sudo, ForceNew: true})
	}

	response := p.applyMemoryUpdates(result.Response)
	response = p.applyOutboundRequests(response, result.SessionToken)
	// A directive-only response strips down to nothing; the owner still
	// gets a reply, otherwise the delivery poller would skip the item.
	if strings.TrimSpace(response) == "" {
		response = "(no response)"
	}

	p.logger.Info("message processed", "id", item.ID, "success", result.Success)
	return p.store.Queue.Complete(item.ID, response, result.Success, result.SessionToken)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
