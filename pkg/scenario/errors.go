package scenario

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// ProbeTimeoutError fails a single probe step; the run goes on.
type ProbeTimeoutError struct {
	Source  string
	Target  netip.Addr
	Timeout time.Duration
}

func (e *ProbeTimeoutError) Error() string {
	return fmt.Sprintf("probe %s -> %s timed out after %s", e.Source, e.Target, e.Timeout)
}

// EmulatorUnavailableError aborts a run before any step: the emulator could
// not be acquired, so there is nothing to tear down.
type EmulatorUnavailableError struct {
	Err error
}

func (e *EmulatorUnavailableError) Error() string {
	return "emulator unavailable: " + e.Err.Error()
}

func (e *EmulatorUnavailableError) Unwrap() error {
	return e.Err
}

// CommandError reports a host command that exited non-zero while realising
// a policy transition or an address change.
type CommandError struct {
	Host     string
	Argv     []string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %q exited with %d", e.Host, strings.Join(e.Argv, " "), e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// StepError reports a script entry that cannot be carried out on the
// topology at hand, such as an unknown host.
type StepError struct {
	Index  int
	Step   Step
	Reason string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step #%d (%s): %s", e.Index+1, e.Step, e.Reason)
}
