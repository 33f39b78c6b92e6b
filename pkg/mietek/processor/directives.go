package processor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// scanBlocks finds all fenced blocks tagged with the given name, calls
// apply with each block's inner payload, and replaces the block with
// whatever apply returns. Blocks are removed from the response even when
// apply cannot make sense of the payload, so internal directives never
// leak to the user.
func scanBlocks(text, tag string, apply func(payload string) string) string {
	re := regexp.MustCompile("(?s)```" + regexp.QuoteMeta(tag) + "\\s*\n?(.*?)```")
	out := re.ReplaceAllStringFunc(text, func(block string) string {
		payload := re.FindStringSubmatch(block)[1]
		return apply(strings.TrimSpace(payload))
	})
	return strings.TrimSpace(out)
}

type memoryUpdate struct {
	Action   string `json:"action"`
	Category string `json:"category"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

// applyMemoryUpdates processes memory_update blocks in an AI response and
// returns the response with the blocks stripped.
func (p *Processor) applyMemoryUpdates(response string) string {
	return scanBlocks(response, "memory_update", func(payload string) string {
		var upd memoryUpdate
		if err := json.Unmarshal([]byte(payload), &upd); err != nil {
			p.logger.Warn("failed to parse memory update", "error", err)
			return ""
		}
		switch {
		case upd.Action == "save" && upd.Key != "" && upd.Value != "":
			if err := p.store.Memory.Save(upd.Category, upd.Key, upd.Value, "inferred"); err != nil {
				p.logger.Error("failed to save memory", "key", upd.Key, "error", err)
				return ""
			}
			p.logger.Info("saved memory", "key", upd.Key)
		case upd.Action == "delete" && upd.Key != "":
			if _, err := p.store.Memory.Forget(upd.Key); err != nil {
				p.logger.Error("failed to delete memory", "key", upd.Key, "error", err)
				return ""
			}
			p.logger.Info("deleted memory", "key", upd.Key)
		default:
			p.logger.Warn("memory update block with unusable payload", "action", upd.Action)
		}
		return ""
	})
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

var phoneJunk = regexp.MustCompile(`[\s\-+]`)

// applyOutboundRequests processes send_message blocks: each valid block
// becomes a pending approval request and is replaced by a confirmation
// telling the owner how to approve or reject it.
func (p *Processor) applyOutboundRequests(response, sessionToken string) string {
	return scanBlocks(response, "send_message", func(payload string) string {
		var req sendRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			p.logger.Warn("failed to parse send_message block", "error", err)
			return ""
		}
		if req.To == "" || req.Message == "" {
			p.logger.Warn("send_message block missing 'to' or 'message'")
			return ""
		}

		phone := phoneJunk.ReplaceAllString(req.To, "")
		id, err := p.store.Outbound.Create(phone, req.Message, sessionToken)
		if err != nil {
			p.logger.Error("failed to create outbound request", "error", err)
			return ""
		}
		p.logger.Info("outbound request queued", "id", id, "phone", phone, "chars", len(req.Message))

		preview := req.Message
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return fmt.Sprintf(p.locale.OutboundConfirmation, id, phone, preview, id, id)
	})
}
