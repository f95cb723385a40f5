// Package emulator defines the collaborators the scenario runner drives: the
// network emulator that owns hosts and links, and the prober that measures
// delivery between them.
package emulator

import (
	"context"
	"net/netip"

	"github.com/pkg/errors"

	"slicelab/api"
)

var (
	ErrNotStarted     = errors.New("emulator not started")
	ErrUnknownHost    = errors.New("unknown host")
	ErrAlreadyStarted = errors.New("emulator already started")
)

// Emulator brings a topology up and runs commands on its hosts. Start
// acquires the emulator exclusively; Stop releases everything Start created.
type Emulator interface {
	Start(ctx context.Context, topo *api.Topology) error
	Stop(ctx context.Context) error
	ExecCommand(ctx context.Context, host string, argv []string) (stdout string, exitCode int, err error)
}

// Prober sends samples echo requests from source to target and returns the
// delivered fraction (replies received / samples).
type Prober interface {
	Probe(ctx context.Context, source string, target netip.Addr, samples int) (float64, error)
}

// Backend is an emulator that can also probe its own network.
type Backend interface {
	Emulator
	Prober
}
