// Package heartbeat runs periodic system checks and reminder sweeps,
// delivering results through the message queue as pre-completed notices.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CheckResult is one finding from a system check.
type CheckResult struct {
	Type     string
	Severity string
	DedupKey string
	Message  string
}

const (
	diskWarningPercent  = 90
	diskCriticalPercent = 95
	pm2RestartThreshold = 10
)

func execOut(timeout time.Duration, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return strings.TrimSpace(string(out)), err
}

// CheckDocker reports exited, dead or unhealthy containers. A missing
// docker binary is not an error, just an empty result.
func CheckDocker() []CheckResult {
	out, err := execOut(10*time.Second, "docker", "ps", "-a", "--format", "{{.Names}}|{{.Status}}|{{.State}}")
	if err != nil || out == "" {
		return nil
	}

	var results []CheckResult
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(line, "|", 3)
		if len(fields) < 3 || fields[0] == "" {
			continue
		}
		name, status, state := fields[0], fields[1], fields[2]

		switch {
		case state == "exited" || state == "dead":
			results = append(results, CheckResult{
				Type:     "docker",
				Severity: "warning",
				DedupKey: "docker-down-" + name,
				Message:  fmt.Sprintf("🐳 Kontener %s jest %s: %s", name, state, status),
			})
		case strings.Contains(status, "unhealthy"):
			results = append(results, CheckResult{
				Type:     "docker",
				Severity: "warning",
				DedupKey: "docker-unhealthy-" + name,
				Message:  fmt.Sprintf("🐳 Kontener %s jest unhealthy: %s", name, status),
			})
		}
	}
	return results
}

// CheckDisk reports root filesystem usage above the warning and critical
// thresholds.
func CheckDisk() []CheckResult {
	out, err := execOut(5*time.Second, "sh", "-c", "df -h / | tail -1")
	if err != nil {
		return nil
	}
	parts := strings.Fields(out)
	if len(parts) < 5 {
		return nil
	}
	usage, err := strconv.Atoi(strings.TrimSuffix(parts[4], "%"))
	if err != nil {
		return nil
	}

	switch {
	case usage >= diskCriticalPercent:
		return []CheckResult{{
			Type:     "disk",
			Severity: "critical",
			DedupKey: "disk-critical",
			Message:  fmt.Sprintf("💾 KRYTYCZNY: Dysk %d%% użycia (%s/%s)", usage, parts[2], parts[1]),
		}}
	case usage >= diskWarningPercent:
		return []CheckResult{{
			Type:     "disk",
			Severity: "warning",
			DedupKey: "disk-warning",
			Message:  fmt.Sprintf("💾 Dysk %d%% użycia (%s/%s)", usage, parts[2], parts[1]),
		}}
	}
	return nil
}

type pm2Process struct {
	Name   string `json:"name"`
	PM2Env struct {
		Status      string `json:"status"`
		RestartTime int    `json:"restart_time"`
	} `json:"pm2_env"`
}

// CheckPM2 reports errored or stopped pm2 processes and restart storms.
func CheckPM2() []CheckResult {
	out, err := execOut(5*time.Second, "pm2", "jlist")
	if err != nil {
		return nil
	}
	var procs []pm2Process
	if json.Unmarshal([]byte(out), &procs) != nil {
		return nil
	}

	var results []CheckResult
	for _, p := range procs {
		status := p.PM2Env.Status
		restarts := p.PM2Env.RestartTime

		switch {
		case status == "errored" || status == "stopped":
			results = append(results, CheckResult{
				Type:     "pm2",
				Severity: "critical",
				DedupKey: "pm2-down-" + p.Name,
				Message:  fmt.Sprintf("⚙️ PM2 proces %s jest %s (restarts: %d)", p.Name, status, restarts),
			})
		case restarts > pm2RestartThreshold:
			results = append(results, CheckResult{
				Type:     "pm2",
				Severity: "warning",
				DedupKey: "pm2-restarts-" + p.Name,
				Message:  fmt.Sprintf("⚙️ PM2 proces %s ma %d restartów", p.Name, restarts),
			})
		}
	}
	return results
}

// SystemSummary collects a short multi-line status of disk, RAM, docker,
// pm2 and uptime. Each probe is best effort.
func SystemSummary() string {
	var lines []string

	if out, err := execOut(5*time.Second, "sh", "-c", "df -h / | tail -1"); err == nil {
		parts := strings.Fields(out)
		if len(parts) >= 5 {
			lines = append(lines, fmt.Sprintf("💾 Dysk: %s (%s/%s)", parts[4], parts[2], parts[1]))
		}
	}

	if out, err := execOut(5*time.Second, "sh", "-c", "free -h | grep Mem"); err == nil {
		parts := strings.Fields(out)
		if len(parts) >= 3 {
			lines = append(lines, fmt.Sprintf("🧠 RAM: %s/%s", parts[2], parts[1]))
		}
	}

	if out, err := execOut(5*time.Second, "docker", "ps", "--format", "{{.Names}}: {{.Status}}"); err == nil && out != "" {
		lines = append(lines, "🐳 Docker:\n"+out)
	}

	if out, err := execOut(5*time.Second, "pm2", "jlist"); err == nil {
		var procs []pm2Process
		if json.Unmarshal([]byte(out), &procs) == nil && len(procs) > 0 {
			pmLines := make([]string, 0, len(procs))
			for _, p := range procs {
				pmLines = append(pmLines, fmt.Sprintf("  %s: %s (↻%d)", p.Name, p.PM2Env.Status, p.PM2Env.RestartTime))
			}
			lines = append(lines, "⚙️ PM2:\n"+strings.Join(pmLines, "\n"))
		}
	}

	if out, err := execOut(5*time.Second, "uptime", "-p"); err == nil {
		lines = append(lines, "⏱️ "+out)
	}

	return strings.Join(lines, "\n")
}
