package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mietekbot/mietek/pkg/mietek/store"
)

// CommandResult is the outcome of command interception.
type CommandResult struct {
	Handled  bool
	Response string
}

// HandleCommand intercepts prefix commands before any AI call. /sudo is
// deliberately not handled here: it modifies the AI invocation and is
// stripped by the loop.
func (p *Processor) HandleCommand(text string) CommandResult {
	trimmed := strings.TrimSpace(text)

	switch {
	case trimmed == "/status":
		return p.cmdStatus()
	case trimmed == "/memory":
		return p.cmdMemory()
	case trimmed == "/clear":
		return p.cmdClear()
	case strings.HasPrefix(trimmed, "/forget "):
		return p.cmdForget(strings.TrimSpace(trimmed[len("/forget "):]))
	case strings.HasPrefix(trimmed, "/remind "):
		return p.cmdRemind(strings.TrimSpace(trimmed[len("/remind "):]))
	}

	// Polish diacritics fold to ASCII so /wyślij matches /wyslij.
	folded := strings.NewReplacer("ś", "s", "Ś", "S", "ć", "c", "Ć", "C").Replace(trimmed)
	if strings.HasPrefix(folded, p.locale.ApproveCommand) {
		return p.cmdApproveOutbound(strings.TrimSpace(folded[len(p.locale.ApproveCommand):]))
	}
	if strings.HasPrefix(folded, p.locale.RejectCommand) {
		return p.cmdRejectOutbound(strings.TrimSpace(folded[len(p.locale.RejectCommand):]))
	}

	return CommandResult{}
}

func runCheck(cmd string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, cmd, args...).Output()
	return strings.TrimSpace(string(out)), err
}

func (p *Processor) cmdStatus() CommandResult {
	lines := []string{"*System Status*\n"}

	if out, err := runCheck("sh", "-c", "df -h / | tail -1"); err == nil {
		parts := strings.Fields(out)
		if len(parts) >= 5 {
			lines = append(lines, fmt.Sprintf("💾 Disk: %s used (%s/%s)", parts[4], parts[2], parts[1]))
		}
	} else {
		lines = append(lines, "💾 Disk: error checking")
	}

	if out, err := runCheck("docker", "ps", "--format", "{{.Names}}: {{.Status}}"); err == nil {
		if out != "" {
			lines = append(lines, "\n🐳 *Docker:*\n"+out)
		} else {
			lines = append(lines, "🐳 Docker: no containers")
		}
	} else {
		lines = append(lines, "🐳 Docker: not available")
	}

	if out, err := runCheck("pm2", "jlist"); err == nil {
		var procs []struct {
			Name   string `json:"name"`
			PM2Env struct {
				Status      string `json:"status"`
				RestartTime int    `json:"restart_time"`
			} `json:"pm2_env"`
		}
		if json.Unmarshal([]byte(out), &procs) == nil && len(procs) > 0 {
			pm2Lines := make([]string, 0, len(procs))
			for _, pr := range procs {
				status := pr.PM2Env.Status
				if status == "" {
					status = "unknown"
				}
				pm2Lines = append(pm2Lines, fmt.Sprintf("%s: %s (restarts: %d)", pr.Name, status, pr.PM2Env.RestartTime))
			}
			lines = append(lines, "\n⚙️ *PM2:*\n"+strings.Join(pm2Lines, "\n"))
		} else {
			lines = append(lines, "⚙️ PM2: not available")
		}
	} else {
		lines = append(lines, "⚙️ PM2: not available")
	}

	if out, err := runCheck("sh", "-c", "free -h | grep Mem"); err == nil {
		parts := strings.Fields(out)
		if len(parts) >= 3 {
			lines = append(lines, fmt.Sprintf("\n🧠 RAM: %s used / %s total", parts[2], parts[1]))
		}
	} else {
		lines = append(lines, "🧠 RAM: error checking")
	}

	if out, err := runCheck("uptime", "-p"); err == nil {
		lines = append(lines, "⏱️ Uptime: "+out)
	}

	return CommandResult{Handled: true, Response: strings.Join(lines, "\n")}
}

func (p *Processor) cmdMemory() CommandResult {
	facts, err := p.store.Memory.ListActive()
	if err != nil {
		return CommandResult{Handled: true, Response: fmt.Sprintf("error: %v", err)}
	}
	if len(facts) == 0 {
		return CommandResult{Handled: true, Response: p.locale.NoMemory}
	}

	grouped := map[string][]*store.Fact{}
	var order []string
	for _, f := range facts {
		if _, ok := grouped[f.Category]; !ok {
			order = append(order, f.Category)
		}
		grouped[f.Category] = append(grouped[f.Category], f)
	}

	lines := []string{p.locale.MemoryTitle}
	for _, category := range order {
		lines = append(lines, fmt.Sprintf("*%s:*", category))
		for _, f := range grouped[category] {
			lines = append(lines, fmt.Sprintf("• %s: %s", f.Key, f.Value))
		}
		lines = append(lines, "")
	}
	return CommandResult{Handled: true, Response: strings.TrimSpace(strings.Join(lines, "\n"))}
}

func (p *Processor) cmdClear() CommandResult {
	hadSession := p.invoker.Current() != ""
	p.invoker.Clear()
	if hadSession {
		return CommandResult{Handled: true, Response: p.locale.SessionCleared}
	}
	return CommandResult{Handled: true, Response: p.locale.NoActiveSession}
}

func (p *Processor) cmdForget(key string) CommandResult {
	if key == "" {
		return CommandResult{Handled: true, Response: p.locale.ForgetUsage}
	}
	ok, err := p.store.Memory.Forget(key)
	if err != nil {
		return CommandResult{Handled: true, Response: fmt.Sprintf("error: %v", err)}
	}
	if !ok {
		return CommandResult{Handled: true, Response: fmt.Sprintf(p.locale.ForgetNotFound, key)}
	}
	p.logger.Info("forgot memory", "key", key)
	return CommandResult{Handled: true, Response: fmt.Sprintf(p.locale.Forgot, key)}
}

func (p *Processor) cmdRemind(input string) CommandResult {
	m := p.locale.RemindPattern.FindStringSubmatch(input)
	if m == nil {
		return CommandResult{Handled: true, Response: p.locale.RemindUsage}
	}

	text := strings.TrimSpace(m[1])
	amount, err := strconv.Atoi(m[2])
	if err != nil {
		return CommandResult{Handled: true, Response: p.locale.RemindUsage}
	}
	unit := p.locale.UnitDuration(strings.ToLower(m[3]))

	dueAt := time.Now().Add(time.Duration(amount) * unit)
	if _, err := p.store.Reminders.Add(text, dueAt, ""); err != nil {
		return CommandResult{Handled: true, Response: fmt.Sprintf("error: %v", err)}
	}

	timeStr := dueAt.In(p.locale.Location()).Format("15:04")
	p.logger.Info("reminder set", "text", text, "due_at", dueAt)
	return CommandResult{Handled: true, Response: fmt.Sprintf(p.locale.ReminderSet, text, timeStr)}
}

// pickOutbound resolves the target of an approve/reject command: by id
// when given, otherwise the oldest pending request.
func (p *Processor) pickOutbound(idStr string) (*store.OutboundRequest, error) {
	if idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, nil
		}
		return p.store.Outbound.Get(id)
	}
	return p.store.Outbound.OldestPending()
}

func (p *Processor) cmdApproveOutbound(idStr string) CommandResult {
	req, err := p.pickOutbound(idStr)
	if err != nil {
		return CommandResult{Handled: true, Response: fmt.Sprintf("error: %v", err)}
	}
	if req == nil {
		return CommandResult{Handled: true, Response: p.locale.OutboundNotFound}
	}
	if req.Status != store.OutboundPendingApproval {
		return CommandResult{Handled: true, Response: fmt.Sprintf(p.locale.OutboundAlreadyHandled, req.ID, req.Status)}
	}
	if _, err := p.store.Outbound.Approve(req.ID); err != nil {
		return CommandResult{Handled: true, Response: fmt.Sprintf("error: %v", err)}
	}
	p.logger.Info("outbound approved", "id", req.ID, "phone", req.TargetPhone)
	return CommandResult{Handled: true, Response: fmt.Sprintf(p.locale.OutboundApproved, req.TargetPhone)}
}

func (p *Processor) cmdRejectOutbound(idStr string) CommandResult {
	req, err := p.pickOutbound(idStr)
	if err != nil {
		return CommandResult{Handled: true, Response: fmt.Sprintf("error: %v", err)}
	}
	if req == nil {
		return CommandResult{Handled: true, Response: p.locale.OutboundNotFound}
	}
	if req.Status != store.OutboundPendingApproval {
		return CommandResult{Handled: true, Response: fmt.Sprintf(p.locale.OutboundAlreadyHandled, req.ID, req.Status)}
	}
	if _, err := p.store.Outbound.Reject(req.ID); err != nil {
		return CommandResult{Handled: true, Response: fmt.Sprintf("error: %v", err)}
	}
	p.logger.Info("outbound rejected", "id", req.ID)
	return CommandResult{Handled: true, Response: fmt.Sprintf(p.locale.OutboundRejected, req.TargetPhone)}
}
