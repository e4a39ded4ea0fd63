package activity

import (
	"context"

	"github.com/edvin/accountfactory/internal/gate"
	"github.com/edvin/accountfactory/internal/model"
)

// Gate contains the concurrency-gate activity.
type Gate struct {
	gate *gate.Gate
}

// NewGate creates a new Gate activity struct.
func NewGate(g *gate.Gate) *Gate {
	return &Gate{gate: g}
}

// CheckForRunningProcesses reports which shared deployment resources are
// currently busy. An empty result means the workflow may proceed.
func (a *Gate) CheckForRunningProcesses(ctx context.Context) (model.GateResult, error) {
	return a.gate.Check(ctx)
}
