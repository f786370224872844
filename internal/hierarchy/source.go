// Package hierarchy resolves and lays out the objective alignment hierarchy:
// root/path resolution, cycle-safe alignment candidates, global cycle
// validation and the breadth-first graph builder.
package hierarchy

import (
	"context"

	"okrhub/api/internal/okr"
)

// Source loads objectives for the hierarchy. Implementations return
// okr.ErrNotFound for unknown ids.
type Source interface {
	GetObjective(ctx context.Context, id string) (okr.Objective, error)
	GetObjectiveWithRelations(ctx context.Context, id string) (okr.ObjectiveWithRelations, error)
}
