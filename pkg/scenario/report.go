package scenario

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

// Entry is the outcome of one attempted step. Expected and Observed are
// delivered fractions and only meaningful for probes.
type Entry struct {
	Index    int
	Step     Step
	Probe    bool
	Samples  int
	Expected float64
	Observed float64
	Passed   bool
	Err      error
}

// Abort marks a run that stopped on a fatal error. Step is the index of the
// step that could not be carried out, -1 if the run never reached a step.
type Abort struct {
	Step int
	Err  error
}

type Report struct {
	ID       uuid.UUID
	Scenario string
	Started  time.Time
	Entries  []Entry
	Aborted  *Abort
}

func newReport(name string) *Report {
	return &Report{
		ID:       uuid.New(),
		Scenario: name,
		Started:  time.Now(),
	}
}

func (r *Report) abort(step int, err error) {
	r.Aborted = &Abort{Step: step, Err: err}
}

// Passed is true when the run completed and every entry passed.
func (r *Report) Passed() bool {
	if r.Aborted != nil {
		return false
	}
	for _, e := range r.Entries {
		if !e.Passed {
			return false
		}
	}
	return true
}

func (r *Report) Failures() int {
	n := 0
	for _, e := range r.Entries {
		if !e.Passed {
			n++
		}
	}
	return n
}

var (
	passLabel  = color.New(color.FgGreen, color.Bold).SprintFunc()
	failLabel  = color.New(color.FgRed, color.Bold).SprintFunc()
	abortLabel = color.New(color.FgMagenta, color.Bold).SprintFunc()
)

// Print writes one PASS/FAIL line per entry, an ABORT line if the run was
// cut short, and a summary.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "scenario %s (run %s)\n", r.Scenario, r.ID)
	for _, e := range r.Entries {
		label := passLabel("PASS")
		if !e.Passed {
			label = failLabel("FAIL")
		}
		line := fmt.Sprintf("%s  #%-2d %s", label, e.Index+1, e.Step)
		if e.Probe {
			line += fmt.Sprintf("  expected=%.2f observed=%.2f", e.Expected, e.Observed)
		}
		if e.Err != nil {
			line += fmt.Sprintf("  (%v)", e.Err)
		}
		fmt.Fprintln(w, line)
	}
	if r.Aborted != nil {
		fmt.Fprintf(w, "%s #%-2d %v\n", abortLabel("ABORT"), r.Aborted.Step+1, r.Aborted.Err)
	}
	status := passLabel("PASSED")
	if !r.Passed() {
		status = failLabel("FAILED")
	}
	fmt.Fprintf(w, "%s: %d steps, %d failed\n", status, len(r.Entries), r.Failures())
}
