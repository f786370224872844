package store

import (
	"context"
	"fmt"

	"okrhub/api/internal/okr"
)

// hierarchyLockKey is the transaction advisory lock taken by every write
// that changes the shape of the hierarchy.
const hierarchyLockKey int64 = 0x6f6b726869657201

// HierarchyGuard inspects the whole hierarchy as the locked transaction sees
// it and rejects a structural write by returning an error.
type HierarchyGuard func(objectives []okr.Objective, alignments []okr.ObjectiveAlignment) error

// CreateAlignmentChecked inserts an alignment once guard accepts the current hierarchy.
// The check and the insert share one transaction holding the hierarchy lock,
// so two concurrent writes cannot both pass against the same snapshot.
func (s *PostgresStore) CreateAlignmentChecked(ctx context.Context, a okr.ObjectiveAlignment, guard HierarchyGuard) (okr.ObjectiveAlignment, error) {
	var created okr.ObjectiveAlignment
	err := s.withHierarchyLock(ctx, guard, func(tx *PostgresStore) error {
		var err error
		created, err = tx.CreateAlignment(ctx, a)
		return err
	})
	return created, err
}

// UpdateObjectiveChecked applies patch under the hierarchy lock. A nil guard
// skips the snapshot.
func (s *PostgresStore) UpdateObjectiveChecked(ctx context.Context, id string, patch ObjectivePatch, guard HierarchyGuard) (okr.Objective, error) {
	if guard == nil {
		return s.UpdateObjective(ctx, id, patch)
	}
	var updated okr.Objective
	err := s.withHierarchyLock(ctx, guard, func(tx *PostgresStore) error {
		var err error
		updated, err = tx.UpdateObjective(ctx, id, patch)
		return err
	})
	return updated, err
}

func (s *PostgresStore) withHierarchyLock(ctx context.Context, guard HierarchyGuard, write func(tx *PostgresStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin hierarchy write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, hierarchyLockKey); err != nil {
		return fmt.Errorf("hierarchy lock: %w", err)
	}
	locked := &PostgresStore{db: s.db, q: tx}

	objectives, err := locked.ListObjectives(ctx, ObjectiveFilter{})
	if err != nil {
		return err
	}
	alignments, err := locked.ListAlignments(ctx)
	if err != nil {
		return err
	}
	if err := guard(objectives, alignments); err != nil {
		return err
	}
	if err := write(locked); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit hierarchy write: %w", err)
	}
	return nil
}
