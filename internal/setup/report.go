// Package setup renders run results in the terminal and asks the operator
// before orders are sent.
package setup

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warning   = lipgloss.AdaptiveColor{Light: "#D9534F", Dark: "#FF6B6B"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(0, 2).
			Bold(true).
			MarginBottom(1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1)

	mutedStyle = lipgloss.NewStyle().Foreground(subtle)
	okStyle    = lipgloss.NewStyle().Foreground(special)
	failStyle  = lipgloss.NewStyle().Foreground(warning).Bold(true)
)

// RenderRecord formats a run record for the terminal.
func RenderRecord(record domain.RunRecord) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("REBALANCE %s  %s", strings.ToUpper(record.Mode.String()), record.RunID)))
	b.WriteString("\n")

	if record.Snapshot != nil {
		b.WriteString(RenderSnapshot(*record.Snapshot))
	}
	if record.Drift != nil {
		b.WriteString(RenderDrift(*record.Drift))
	}
	if record.Preflight != nil {
		b.WriteString(RenderPreflight(*record.Preflight))
	}
	if record.Plan != nil {
		b.WriteString(RenderPlan(*record.Plan))
	}
	if record.Outcome != nil {
		b.WriteString(RenderOutcome(*record.Outcome))
	}
	if record.Error != "" {
		b.WriteString("\n")
		b.WriteString(failStyle.Render("error: " + record.Error))
		b.WriteString("\n")
	}

	return b.String()
}

// RenderSnapshot portfolio total and unavailable sources.
func RenderSnapshot(s domain.HoldingsSnapshot) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("HOLDINGS"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("total %s %s at %s\n", s.TotalValue().StringFixed(2), s.QuoteAsset(), s.Timestamp().Format("2006-01-02 15:04:05 MST")))
	for _, gap := range s.Gaps() {
		b.WriteString(failStyle.Render(fmt.Sprintf("source %s unavailable: %s", gap.Source, gap.Reason)))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderDrift per-asset allocation table.
func RenderDrift(d domain.DriftResult) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("ASSET", "VALUE", "CURRENT %", "TARGET %", "DRIFT pp", "DRIFT VALUE")

	for _, a := range d.Assets {
		value := a.CurrentValue.StringFixed(2)
		if !a.Priced {
			value = "unpriced"
		}
		t.Row(
			a.Asset,
			value,
			a.CurrentPct.StringFixed(2),
			a.TargetPct.StringFixed(2),
			signed(a.DriftPct),
			signed(a.DriftValue),
		)
	}

	var b strings.Builder
	b.WriteString(sectionStyle.Render("DRIFT"))
	b.WriteString("\n")
	b.WriteString(t.String())
	b.WriteString("\n")
	if d.EffectiveTarget.Adjusted {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("%s weight %s -> %s (volatility %s)",
			d.EffectiveTarget.AdaptiveAsset,
			d.EffectiveTarget.BaseWeight.String(),
			d.EffectiveTarget.AdjustedWeight.StringFixed(4),
			d.EffectiveTarget.Volatility.StringFixed(4))))
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("estimated cost %s %s\n", d.EstimatedCost.StringFixed(2), d.QuoteAsset))
	return b.String()
}

// RenderPreflight checklist with pass marks.
func RenderPreflight(r domain.PreflightReport) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("PREFLIGHT"))
	b.WriteString("\n")
	for _, c := range r.Checks {
		mark := okStyle.Render("PASS")
		switch {
		case c.Skipped:
			mark = mutedStyle.Render("SKIP")
		case !c.Passed:
			mark = failStyle.Render("FAIL")
		}
		b.WriteString(fmt.Sprintf("%s  %-20s %s\n", mark, c.Name, c.Detail))
	}
	if r.OverallPass {
		b.WriteString(okStyle.Render("all checks passed"))
	} else {
		b.WriteString(failStyle.Render("failed: " + r.FailedNames()))
	}
	b.WriteString("\n")
	return b.String()
}

// RenderPlan ordered rungs.
func RenderPlan(p domain.ExecutionPlan) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf("PLAN (%s)", p.Policy)))
	b.WriteString("\n")
	if p.IsEmpty() {
		b.WriteString(mutedStyle.Render("no trades needed"))
		b.WriteString("\n")
	}
	for i, o := range p.Orders {
		b.WriteString(fmt.Sprintf("%2d. %s  ~%s %s\n", i+1, o.String(), o.Notional().StringFixed(2), p.QuoteAsset))
	}
	for _, s := range p.Skipped {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("skipped %s: %s", s.Asset, s.Reason)))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderOutcome rung statuses and the checkpoint.
func RenderOutcome(o domain.ExecutionOutcome) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("EXECUTION"))
	b.WriteString("\n")
	for _, r := range o.Rungs {
		status := okStyle.Render(string(r.Status))
		if r.Status == domain.RungFailed {
			status = failStyle.Render(string(r.Status))
		} else if r.Status == domain.RungNotAttempted {
			status = mutedStyle.Render(string(r.Status))
		}
		b.WriteString(fmt.Sprintf("%-13s %s  %s\n", status, r.ClientOrderID, r.Order.String()))
	}
	for _, f := range o.Failures {
		b.WriteString(failStyle.Render(fmt.Sprintf("%s rung %d: %s", f.Asset, f.Rung+1, f.Reason)))
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("checkpoint %d/%d completed, next order %d\n", o.Checkpoint.Completed, o.Checkpoint.Total, o.Checkpoint.NextOrder))
	if o.Aborted {
		b.WriteString(failStyle.Render("aborted: " + o.AbortReason))
		b.WriteString("\n")
	}
	return b.String()
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}
