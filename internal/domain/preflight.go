package domain

import "strings"

// PreflightCheck one entry of the safety checklist.
type PreflightCheck struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Skipped bool   `json:"skipped,omitempty"`
	Detail  string `json:"detail"`
}

// PreflightReport ordered checklist result. A failing report is a normal
// outcome, not an error.
type PreflightReport struct {
	Checks      []PreflightCheck `json:"checks"`
	OverallPass bool             `json:"overall_pass"`
}

// NewPreflightReport builds a report; OverallPass is true iff every check passed.
// Skipped checks count as passed.
func NewPreflightReport(checks []PreflightCheck) PreflightReport {
	pass := true
	for _, c := range checks {
		if !c.Passed {
			pass = false
			break
		}
	}
	return PreflightReport{Checks: checks, OverallPass: pass}
}

// Check returns the check with the given name.
func (r PreflightReport) Check(name string) (PreflightCheck, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return PreflightCheck{}, false
}

// Failed returns the checks that did not pass.
func (r PreflightReport) Failed() []PreflightCheck {
	var failed []PreflightCheck
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// FailedNames returns a comma-separated list of failed check names.
func (r PreflightReport) FailedNames() string {
	failed := r.Failed()
	names := make([]string, 0, len(failed))
	for _, c := range failed {
		names = append(names, c.Name)
	}
	return strings.Join(names, ",")
}
