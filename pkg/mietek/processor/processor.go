// Package processor consumes the message queue: it intercepts prefix
// commands, builds prompts, invokes the AI and applies directive blocks
// from responses.
package processor

import (
	"context"
	"log/slog"

	"github.com/mietekbot/mietek/pkg/mietek/claude"
	"github.com/mietekbot/mietek/pkg/mietek/config"
	"github.com/mietekbot/mietek/pkg/mietek/i18n"
	"github.com/mietekbot/mietek/pkg/mietek/store"
)

// Invoker is the AI session surface the processor needs. *claude.Runner
// implements it; tests substitute a fake.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, opts claude.Options) claude.Result
	Current() string
	Clear()
	ResumeLastKnown(src claude.TokenSource)
}

// Processor drives queue consumption for one owner.
type Processor struct {
	cfg     *config.Config
	store   *store.Store
	invoker Invoker
	locale  *i18n.Locale
	logger  *slog.Logger
}

// New creates a Processor.
func New(cfg *config.Config, st *store.Store, invoker Invoker, logger *slog.Logger) *Processor {
	return &Processor{
		cfg:     cfg,
		store:   st,
		invoker: invoker,
		locale:  i18n.For(cfg.Language),
		logger:  logger.With("component", "processor"),
	}
}

// resolve fills persona placeholders in a locale template.
func (p *Processor) resolve(text string) string {
	return i18n.Resolve(text, p.cfg.BotName, p.cfg.OwnerName)
}
