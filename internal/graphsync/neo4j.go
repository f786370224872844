// Package graphsync mirrors objectives and their hierarchy edges into Neo4j
// so analysts can query alignment structure with Cypher. The mirror is best
// effort: Postgres stays the source of truth.
package graphsync

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"okrhub/api/internal/logger"
	"okrhub/api/internal/okr"
)

type Config struct {
	URI      string
	User     string
	Password string
	Database string
	Timeout  time.Duration
	MaxPool  int
}

// Mirror writes objective nodes, PARENT_OF links and ALIGNS_TO relationships.
// A nil *Mirror is valid and does nothing.
type Mirror struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logger.Logger
}

// New connects to Neo4j. An empty URI disables the mirror and returns nil.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*Mirror, error) {
	if cfg.URI == "" {
		return nil, nil
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.User == "" {
		cfg.User = "neo4j"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxPool <= 0 {
		cfg.MaxPool = 50
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPool
		c.SocketConnectTimeout = cfg.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("graphsync: init driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graphsync: verify connectivity: %w", err)
	}

	m := &Mirror{driver: driver, database: cfg.Database, log: log.With("component", "graphsync")}
	m.ensureSchema(ctx)
	return m, nil
}

func (m *Mirror) Close(ctx context.Context) error {
	if m == nil || m.driver == nil {
		return nil
	}
	err := m.driver.Close(ctx)
	m.driver = nil
	return err
}

// ensureSchema may fail for restricted users; the mirror keeps working
// without the constraint.
func (m *Mirror) ensureSchema(ctx context.Context) {
	session := m.session(ctx)
	defer session.Close(ctx)

	for _, stmt := range []string{
		`CREATE CONSTRAINT objective_id_unique IF NOT EXISTS FOR (o:Objective) REQUIRE o.id IS UNIQUE`,
		`CREATE INDEX objective_cycle_idx IF NOT EXISTS FOR (o:Objective) ON (o.cycle_id)`,
	} {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			m.log.Warn("neo4j schema init failed (continuing)", "error", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func (m *Mirror) session(ctx context.Context) neo4j.SessionWithContext {
	return m.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: m.database,
	})
}

const upsertObjectivesCypher = `
UNWIND $nodes AS n
MERGE (o:Objective {id: n.id})
SET o += n.props
WITH o, n
OPTIONAL MATCH (:Objective)-[old:PARENT_OF]->(o)
DELETE old
WITH o, n
WHERE n.parent_id <> ''
MERGE (p:Objective {id: n.parent_id})
MERGE (p)-[:PARENT_OF]->(o)
`

const upsertAlignmentsCypher = `
UNWIND $rels AS r
MERGE (s:Objective {id: r.source_id})
MERGE (a:Objective {id: r.aligned_id})
MERGE (s)-[e:ALIGNS_TO {id: r.id}]->(a)
SET e += r.props
`

const deleteAlignmentCypher = `MATCH ()-[e:ALIGNS_TO {id: $id}]->() DELETE e`

// SyncObjectives upserts objective nodes and replaces each one's parent link.
func (m *Mirror) SyncObjectives(ctx context.Context, objectives ...okr.Objective) error {
	if m == nil || m.driver == nil || len(objectives) == 0 {
		return nil
	}
	return m.write(ctx, upsertObjectivesCypher, map[string]any{"nodes": objectiveParams(objectives, time.Now().UTC())})
}

func (m *Mirror) SyncAlignments(ctx context.Context, alignments ...okr.ObjectiveAlignment) error {
	if m == nil || m.driver == nil || len(alignments) == 0 {
		return nil
	}
	return m.write(ctx, upsertAlignmentsCypher, map[string]any{"rels": alignmentParams(alignments, time.Now().UTC())})
}

func (m *Mirror) DeleteAlignment(ctx context.Context, id string) error {
	if m == nil || m.driver == nil || id == "" {
		return nil
	}
	return m.write(ctx, deleteAlignmentCypher, map[string]any{"id": id})
}

// Rebuild mirrors a full snapshot. Existing nodes that are not in the
// snapshot are left alone.
func (m *Mirror) Rebuild(ctx context.Context, objectives []okr.Objective, alignments []okr.ObjectiveAlignment) error {
	if err := m.SyncObjectives(ctx, objectives...); err != nil {
		return err
	}
	return m.SyncAlignments(ctx, alignments...)
}

func (m *Mirror) write(ctx context.Context, cypher string, params map[string]any) error {
	session := m.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("graphsync: write: %w", err)
	}
	return nil
}

func objectiveParams(objectives []okr.Objective, now time.Time) []map[string]any {
	syncedAt := now.Format(time.RFC3339Nano)
	nodes := make([]map[string]any, 0, len(objectives))
	for _, o := range objectives {
		if o.ID == "" {
			continue
		}
		sbu := ""
		if o.SBUID != nil {
			sbu = *o.SBUID
		}
		nodes = append(nodes, map[string]any{
			"id":        o.ID,
			"parent_id": o.ParentID(),
			"props": map[string]any{
				"title":           o.Title,
				"cycle_id":        o.CycleID,
				"owner_id":        o.OwnerID,
				"status":          string(o.Status),
				"visibility":      string(o.Visibility),
				"approval_status": string(o.ApprovalStatus),
				"sbu_id":          sbu,
				"progress":        finiteOrNil(o.Progress),
				"synced_at":       syncedAt,
			},
		})
	}
	return nodes
}

func alignmentParams(alignments []okr.ObjectiveAlignment, now time.Time) []map[string]any {
	syncedAt := now.Format(time.RFC3339Nano)
	rels := make([]map[string]any, 0, len(alignments))
	for _, a := range alignments {
		if a.ID == "" || a.SourceObjectiveID == "" || a.AlignedObjectiveID == "" {
			continue
		}
		rels = append(rels, map[string]any{
			"id":         a.ID,
			"source_id":  a.SourceObjectiveID,
			"aligned_id": a.AlignedObjectiveID,
			"props": map[string]any{
				"alignment_type": string(a.AlignmentType),
				"weight":         finiteOrNil(a.Weight),
				"synced_at":      syncedAt,
			},
		})
	}
	return rels
}

// Neo4j stores NaN, but Cypher comparisons against it are never true.
func finiteOrNil(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
