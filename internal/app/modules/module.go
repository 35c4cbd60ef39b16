// Package modules wires the console's feature slices together.
//
// Every slice implements Module. Bootstrap calls ContributeServerDeps and
// RegisterWorkers once, in registration order, and Shutdown in reverse.
package modules

import (
	"context"

	"github.com/riverqueue/river"

	"tenantdesk.io/console/internal/api/handlers"
)

type Module interface {
	// Name identifies the module in logs.
	Name() string
	ContributeServerDeps(*handlers.ServerDeps)
	RegisterWorkers(*river.Workers)
	Shutdown(context.Context) error
}

// Starter is an optional Module extension for background loops. Start is
// called once storage and pools are ready and must return promptly.
type Starter interface {
	Start(context.Context) error
}

// noop supplies empty hooks so a module only spells out the ones it uses.
type noop struct{}

func (noop) ContributeServerDeps(*handlers.ServerDeps) {}
func (noop) RegisterWorkers(*river.Workers)            {}
func (noop) Shutdown(context.Context) error            { return nil }
