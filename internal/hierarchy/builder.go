package hierarchy

import (
	"context"
	"time"

	"okrhub/api/internal/logger"
	"okrhub/api/internal/metrics"
	"okrhub/api/internal/okr"
)

type Layout struct {
	HorizontalSpacing float64
	VerticalSpacing   float64
}

var DefaultLayout = Layout{HorizontalSpacing: 250, VerticalSpacing: 150}

// position centres each sibling group around x = 0 and stacks levels down.
func (l Layout) position(level, index, siblingCount int) Position {
	offset := float64(index) - float64(siblingCount-1)/2
	return Position{
		X: offset * l.HorizontalSpacing,
		Y: float64(level) * l.VerticalSpacing,
	}
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Node struct {
	ID          string        `json:"id"`
	Objective   okr.Objective `json:"objective"`
	Position    Position      `json:"position"`
	Level       int           `json:"level"`
	ParentID    string        `json:"parentId,omitempty"`
	AlignmentID string        `json:"alignmentId,omitempty"`
	IsCurrent   bool          `json:"isCurrent"`
	OnPath      bool          `json:"onPath"`
	// Deletable is set on nodes reached through an alignment, which can be
	// removed; direct parent links cannot.
	Deletable bool `json:"deletable"`
}

type Edge struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	Target      string `json:"target"`
	AlignmentID string `json:"alignmentId,omitempty"`
	OnPath      bool   `json:"onPath"`
}

type Graph struct {
	RootID    string `json:"rootId"`
	Nodes     []Node `json:"nodes"`
	Edges     []Edge `json:"edges"`
	Truncated bool   `json:"truncated"`
}

type BuilderOption func(*Builder)

func WithLayout(layout Layout) BuilderOption {
	return func(b *Builder) {
		if layout.HorizontalSpacing > 0 {
			b.layout.HorizontalSpacing = layout.HorizontalSpacing
		}
		if layout.VerticalSpacing > 0 {
			b.layout.VerticalSpacing = layout.VerticalSpacing
		}
	}
}

// WithMaxNodes caps the graph size; zero or less means unbounded.
func WithMaxNodes(n int) BuilderOption {
	return func(b *Builder) { b.maxNodes = n }
}

func WithLogger(log *logger.Logger) BuilderOption {
	return func(b *Builder) {
		if log != nil {
			b.log = log
		}
	}
}

// Builder lays out the downward hierarchy below a root as a positioned graph.
type Builder struct {
	source   Source
	layout   Layout
	maxNodes int
	log      *logger.Logger
}

func NewBuilder(source Source, opts ...BuilderOption) *Builder {
	b := &Builder{source: source, layout: DefaultLayout, log: logger.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("component", "hierarchy.builder")
	return b
}

type queueItem struct {
	entity       okr.Entity
	level        int
	index        int
	siblingCount int
	parentID     string
	alignmentID  string
}

// Build walks breadth-first from root. Each objective id is emitted at most
// once, at the first position the walk reaches it, so cyclic alignment data
// terminates. highlight is a root-to-current path as returned by
// Resolver.Resolve; nodes and edges along it are flagged. Relations are
// fetched sequentially, once per id. A failed fetch leaves that node without
// children. Children rejected by any of visible are skipped together with
// everything reachable only through them, and are not counted as siblings.
// A cancelled context aborts the build with no partial graph.
func (b *Builder) Build(ctx context.Context, root okr.Entity, highlight []string, visible ...Predicate) (Graph, error) {
	started := time.Now()

	pathIndex := make(map[string]int, len(highlight))
	for i, id := range highlight {
		pathIndex[id] = i
	}
	currentID := ""
	if len(highlight) > 0 {
		currentID = highlight[len(highlight)-1]
	}

	graph := Graph{RootID: root.Base().ID, Nodes: []Node{}, Edges: []Edge{}}
	relations := make(map[string]okr.ObjectiveWithRelations)
	processed := make(map[string]struct{})
	queue := []queueItem{{entity: root, siblingCount: 1}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return Graph{}, err
		}
		item := queue[0]
		queue = queue[1:]

		objective := item.entity.Base()
		if _, done := processed[objective.ID]; done {
			continue
		}
		if b.maxNodes > 0 && len(graph.Nodes) >= b.maxNodes {
			graph.Truncated = true
			b.log.Warn("hierarchy graph truncated", "root_id", graph.RootID, "max_nodes", b.maxNodes)
			break
		}
		processed[objective.ID] = struct{}{}

		_, onPath := pathIndex[objective.ID]
		graph.Nodes = append(graph.Nodes, Node{
			ID:          objective.ID,
			Objective:   objective,
			Position:    b.layout.position(item.level, item.index, item.siblingCount),
			Level:       item.level,
			ParentID:    item.parentID,
			AlignmentID: item.alignmentID,
			IsCurrent:   objective.ID != "" && objective.ID == currentID,
			OnPath:      onPath,
			Deletable:   item.alignmentID != "",
		})
		if item.parentID != "" {
			graph.Edges = append(graph.Edges, Edge{
				ID:          item.parentID + "->" + objective.ID,
				Source:      item.parentID,
				Target:      objective.ID,
				AlignmentID: item.alignmentID,
				OnPath:      edgeOnPath(pathIndex, item.parentID, objective.ID),
			})
		}

		rel, ok, err := b.relationsFor(ctx, item.entity, relations)
		if err != nil {
			return Graph{}, err
		}
		if !ok {
			continue
		}
		children, alignmentIDs := visibleChildren(rel, visible)
		for i, child := range children {
			queue = append(queue, queueItem{
				entity:       child,
				level:        item.level + 1,
				index:        i,
				siblingCount: len(children),
				parentID:     objective.ID,
				alignmentID:  alignmentIDs[i],
			})
		}
	}

	metrics.GraphBuildDuration.Observe(time.Since(started).Seconds())
	metrics.GraphNodes.Observe(float64(len(graph.Nodes)))
	return graph, nil
}

// relationsFor returns the relations of entity, using the value carried by
// the entity when it already has them. The bool is false when the fetch
// failed; only context errors are returned.
func (b *Builder) relationsFor(ctx context.Context, entity okr.Entity, memo map[string]okr.ObjectiveWithRelations) (okr.ObjectiveWithRelations, bool, error) {
	id := entity.Base().ID
	if rel, ok := entity.(okr.ObjectiveWithRelations); ok {
		memo[id] = rel
		return rel, true, nil
	}
	if rel, ok := memo[id]; ok {
		return rel, true, nil
	}
	rel, err := b.source.GetObjectiveWithRelations(ctx, id)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return okr.ObjectiveWithRelations{}, false, ctxErr
		}
		b.log.Warn("relations fetch failed, node rendered without children", "objective_id", id, "error", err)
		return okr.ObjectiveWithRelations{}, false, nil
	}
	memo[id] = rel
	return rel, true, nil
}

func visibleChildren(rel okr.ObjectiveWithRelations, visible []Predicate) ([]okr.Objective, []string) {
	children, alignmentIDs := rel.Children()
	if len(visible) == 0 {
		return children, alignmentIDs
	}
	keptChildren := children[:0:0]
	keptIDs := alignmentIDs[:0:0]
	for i, child := range children {
		if matchesAll(child, visible) {
			keptChildren = append(keptChildren, child)
			keptIDs = append(keptIDs, alignmentIDs[i])
		}
	}
	return keptChildren, keptIDs
}

func edgeOnPath(pathIndex map[string]int, parentID, childID string) bool {
	parentAt, ok := pathIndex[parentID]
	if !ok {
		return false
	}
	childAt, ok := pathIndex[childID]
	return ok && childAt == parentAt+1
}
