package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"pert-dashboard/internal/domain"
)

// KindLabel returns the colored label for an event kind.
func KindLabel(k domain.EventKind) string {
	switch k {
	case domain.EventCalculationComplete:
		return BoldGreen("done")
	case domain.EventTaskUpdated:
		return Cyan("task")
	case domain.EventError:
		return BoldRed("error")
	case domain.EventProgress:
		return Yellow("progress")
	default:
		return Dim("info")
	}
}

// StateLabel returns the colored label for a channel state.
func StateLabel(s domain.ChannelState) string {
	switch s {
	case domain.ChannelConnected:
		return Green(s.String())
	case domain.ChannelConnecting, domain.ChannelReconnecting:
		return Yellow(s.String())
	default:
		return Red(s.String())
	}
}

// FormatEvent renders an event as a single line: time, kind, message and
// details when present.
func FormatEvent(e domain.UpdateEvent) string {
	var b strings.Builder
	b.WriteString(Dim(e.Timestamp.Format("15:04:05")))
	b.WriteString(" ")
	b.WriteString(Dim("[") + KindLabel(e.Kind) + Dim("]"))
	b.WriteString(" ")
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString(" ")
		b.WriteString(Dim("(" + e.Details + ")"))
	}
	return b.String()
}

// Renderer writes formatted output to w. Methods are safe for concurrent use.
type Renderer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewRenderer creates a Renderer writing to w.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

func (r *Renderer) println(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, s)
}

// Event prints one update event.
func (r *Renderer) Event(e domain.UpdateEvent) {
	r.println(FormatEvent(e))
}

// State prints a channel state transition.
func (r *Renderer) State(from, to domain.ChannelState) {
	r.println(fmt.Sprintf("%s %s -> %s", Dim("channel"), StateLabel(from), StateLabel(to)))
}

// Ack prints an acknowledgment from the engine.
func (r *Renderer) Ack(op string, ack *domain.Ack) {
	r.println(fmt.Sprintf("%s %s", BoldCyan(op), ack.Message))
}

// Tasks prints the task set as an aligned table.
func (r *Renderer) Tasks(tasks []domain.Task) {
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %8s %8s %8s  %s\n", "ID", "OPT", "LIKELY", "PESS", "DEPENDS ON")
	for _, t := range tasks {
		deps := "-"
		if len(t.Dependencies) > 0 {
			deps = strings.Join(t.Dependencies, ",")
		}
		fmt.Fprintf(&b, "%-16s %8.2f %8.2f %8.2f  %s\n", t.ID, t.Optimistic, t.MostLikely, t.Pessimistic, deps)
	}
	r.println(strings.TrimRight(b.String(), "\n"))
}

// Pert prints an analysis result with critical tasks highlighted.
func (r *Renderer) Pert(res *domain.PertResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %.2f days\n", Bold("Project duration:"), res.ProjectDuration)
	for _, path := range res.CriticalPaths {
		fmt.Fprintf(&b, "%s %s\n", Bold("Critical path:"), strings.Join(path, " -> "))
	}

	fmt.Fprintf(&b, "%-16s %8s %8s %8s %8s %8s\n", "TASK", "ES", "EF", "LS", "LF", "SLACK")
	for _, t := range res.TaskTimings {
		id := fmt.Sprintf("%-16s", t.ID)
		if t.IsCritical() {
			id = BoldRed(id)
		}
		fmt.Fprintf(&b, "%s %8.2f %8.2f %8.2f %8.2f %8.2f\n", id, t.ES, t.EF, t.LS, t.LF, t.Slack)
	}

	mc := res.MonteCarlo
	fmt.Fprintf(&b, "%s mean %.2f  p50 %.2f  p80 %.2f  p95 %.2f",
		Bold("Monte Carlo:"), mc.Mean, mc.P50, mc.P80, mc.P95)
	r.println(b.String())
}

// Comparison prints a classical vs Monte Carlo comparison.
func (r *Renderer) Comparison(res *domain.ComparisonResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %.2f days\n", Bold("Classical PERT:"), res.Classical.ProjectDuration)
	mc := res.MonteCarlo
	fmt.Fprintf(&b, "%s mean %.2f  std %.2f  p50 %.2f  p90 %.2f",
		Bold("Monte Carlo:   "), mc.MeanDuration, mc.StdDev, mc.Percentiles.P50, mc.Percentiles.P90)
	if d := res.Comparison; d != nil {
		diff := fmt.Sprintf("%+.2f days (%+.1f%%)", d.Difference, d.PercentageDiff)
		if d.Difference > 0 {
			diff = Yellow(diff)
		}
		fmt.Fprintf(&b, "\n%s %s", Bold("Difference:    "), diff)
	}
	r.println(b.String())
}
