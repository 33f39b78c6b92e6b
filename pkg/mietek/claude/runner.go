// Package claude manages the AI conversation session and invokes the
// claude CLI as a subprocess. The session token is held in memory only;
// the durable copy lives on completed queue items for resume-after-restart.
package claude

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mietekbot/mietek/pkg/mietek/config"
)

// sessionFreshness bounds how old the last completed exchange may be for
// its session to be resumed after a restart.
const sessionFreshness = time.Hour

// Result is the outcome of one CLI invocation.
type Result struct {
	Success  bool
	Response string
	// SessionToken identifies the conversation used for this call. Empty
	// for one-shot invocations.
	SessionToken string
	Err          string
	// RetryFullContext signals that a resume attempt failed and the caller
	// should retry exactly once with a full-context prompt in forced-new mode.
	RetryFullContext bool
}

// Options modify one invocation.
type Options struct {
	// Sudo lifts the restricted tool allowlist.
	Sudo bool
	// ForceNew starts a fresh session even if one is active. Set on the
	// single retry after a resume failure.
	ForceNew bool
	// OneShot runs with a throwaway session that never touches the
	// current one. Used for external/non-owner messages.
	OneShot bool
}

// TokenSource provides the last durable session token for resume decisions.
type TokenSource interface {
	LastSessionToken() (string, time.Time, error)
}

// Runner holds the active session and runs the claude CLI.
type Runner struct {
	cfg    config.ClaudeConfig
	logger *slog.Logger

	mu      sync.Mutex
	current string
}

// NewRunner creates a Runner with no active session.
func NewRunner(cfg config.ClaudeConfig, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, logger: logger.With("component", "claude")}
}

// Current returns the active session token, empty when none.
func (r *Runner) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Clear drops the active session. The next owner message starts fresh.
func (r *Runner) Clear() {
	r.mu.Lock()
	r.current = ""
	r.mu.Unlock()
	r.logger.Info("session cleared")
}

// ResumeLastKnown adopts the most recent durable session token if its last
// exchange started within the freshness window. Called on processor
// startup so a restart does not lose the conversation.
func (r *Runner) ResumeLastKnown(src TokenSource) {
	token, at, err := src.LastSessionToken()
	if err != nil {
		r.logger.Warn("could not look up last session", "error", err)
		return
	}
	if token == "" {
		r.logger.Info("no previous session found, starting fresh")
		return
	}
	age := time.Since(at)
	if age > sessionFreshness {
		r.logger.Info("last session is stale, starting fresh",
			"session", shortToken(token), "age", age.Round(time.Minute).String())
		return
	}
	r.mu.Lock()
	r.current = token
	r.mu.Unlock()
	r.logger.Info("resumed previous session", "session", shortToken(token))
}

// Invoke runs the claude CLI with the given prompt. Session bookkeeping:
// one-shot calls use a throwaway token, resume calls reuse the current one,
// otherwise a fresh token becomes the current session. A failed resume
// clears the session and sets RetryFullContext so the caller retries once.
func (r *Runner) Invoke(ctx context.Context, prompt string, opts Options) Result {
	r.mu.Lock()
	isResume := !opts.OneShot && r.current != "" && !opts.ForceNew

	var token string
	args := []string{"-p", prompt}
	switch {
	case opts.OneShot:
		token = uuid.NewString()
		args = append(args, "--session-id", token)
	case isResume:
		token = r.current
		args = append(args, "--resume", token)
	default:
		token = uuid.NewString()
		r.current = token
		args = append(args, "--session-id", token)
	}
	r.mu.Unlock()

	args = append(args,
		"--max-turns", strconv.Itoa(r.cfg.MaxTurns),
		"--output-format", "text",
		"--dangerously-skip-permissions",
	)
	if r.cfg.MCPConfigPath != "" {
		if _, err := os.Stat(r.cfg.MCPConfigPath); err == nil {
			args = append(args, "--mcp-config", r.cfg.MCPConfigPath)
		}
	}
	if !opts.Sudo {
		args = append(args, "--allowedTools", r.cfg.AllowedTools)
	}

	r.logger.Info("invoking claude",
		"resume", isResume,
		"one_shot", opts.OneShot,
		"sudo", opts.Sudo,
		"session", shortToken(token),
		"prompt_chars", len(prompt))

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Bin, args...)
	cmd.Env = envWithoutNested()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		errMsg := tailOf(stderr.String(), 500)
		if errMsg == "" {
			errMsg = tailOf(stdout.String(), 500)
		}
		if errMsg == "" {
			errMsg = err.Error()
		}
		r.logger.Error("claude invocation failed", "error", errMsg)

		if isResume && !opts.ForceNew {
			// The stored session may be gone on the CLI side. Drop it and
			// let the caller rebuild context.
			r.mu.Lock()
			r.current = ""
			r.mu.Unlock()
			r.logger.Warn("resume failed, retrying with full context")
			return Result{Err: errMsg, RetryFullContext: true}
		}
		return Result{
			Response: fmt.Sprintf("Przepraszam, wystąpił błąd: %s", headOf(errMsg, 200)),
			Err:      errMsg,
		}
	}

	response := strings.TrimSpace(stdout.String())
	if response == "" {
		response = "(no response)"
	}
	r.logger.Info("claude responded",
		"response_chars", len(response), "session", shortToken(token))

	res := Result{Success: true, Response: response, SessionToken: token}
	if opts.OneShot {
		res.SessionToken = ""
	}
	return res
}

// envWithoutNested strips the CLAUDECODE marker so the CLI does not think
// it is running nested inside another session.
func envWithoutNested() []string {
	env := os.Environ()
	out := env[:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "CLAUDECODE=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}

func tailOf(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

func headOf(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
