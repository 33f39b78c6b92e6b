package processor

import (
	"fmt"
	"strings"
	"time"
)

// buildFullContext builds the prompt for a NEW session: identity, stored
// memory, directive instructions and the current message. Subsequent
// messages in the same session only need buildResumePrompt.
func (p *Processor) buildFullContext(text string) string {
	var parts []string

	parts = append(parts, p.identityBlock())

	facts, err := p.store.Memory.ListActive()
	if err != nil {
		p.logger.Warn("could not load memory for prompt", "error", err)
	}
	if len(facts) > 0 {
		parts = append(parts, "\n"+p.locale.MemoryHeader)
		for _, f := range facts {
			parts = append(parts, fmt.Sprintf("[%s] %s: %s", f.Category, f.Key, f.Value))
		}
	}

	parts = append(parts, "\n"+p.locale.MemoryInstructions+"\n\n"+p.resolve(p.locale.SendMessageInstructions))
	parts = append(parts, "\n"+p.locale.CurrentMessageHeader+"\n"+p.cfg.OwnerName+": "+text)

	return strings.Join(parts, "\n")
}

// buildResumePrompt is the prompt for an active session. The AI already
// carries the context; only the new message is sent.
func (p *Processor) buildResumePrompt(text string) string {
	return text
}

// buildExternalContext builds the one-shot prompt for trigger-word
// invocations from external chats. No memory, no directive instructions,
// so nothing private bleeds into a shared conversation.
func (p *Processor) buildExternalContext(text string) string {
	return p.identityBlock() + "\n\n" + p.resolve(p.locale.ExternalChatRules) +
		"\n\n" + p.locale.MessageHeader + "\n" + text
}

func (p *Processor) identityBlock() string {
	nowLabel := "Current time"
	if p.locale.Tag == "pl" {
		nowLabel = "Obecny czas"
	}
	localNow := time.Now().In(p.locale.Location()).Format("2006-01-02 15:04")

	return p.resolve(p.locale.SystemIdentity) + "\n" +
		p.locale.GenderInstruction(p.cfg.BotGender) + "\n" +
		p.locale.Tone + "\n" +
		nowLabel + ": " + localNow + ".\n\n" +
		p.resolve(p.locale.ResponseFormat)
}
