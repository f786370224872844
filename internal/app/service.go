package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"okrhub/api/internal/auth"
	"okrhub/api/internal/cache"
	"okrhub/api/internal/config"
	"okrhub/api/internal/export"
	"okrhub/api/internal/graphsync"
	"okrhub/api/internal/hierarchy"
	"okrhub/api/internal/logger"
	"okrhub/api/internal/okr"
	"okrhub/api/internal/rbac"
	"okrhub/api/internal/render"
	"okrhub/api/internal/search"
	"okrhub/api/internal/store"
	"okrhub/api/internal/util"
)

type Session struct {
	Token     string
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}

type dataStore interface {
	Ping(ctx context.Context) error
	ListObjectives(context.Context, store.ObjectiveFilter) ([]okr.Objective, error)
	GetObjective(context.Context, string) (okr.Objective, error)
	GetObjectiveWithRelations(context.Context, string) (okr.ObjectiveWithRelations, error)
	CreateObjective(context.Context, okr.Objective) (okr.Objective, error)
	UpdateObjectiveChecked(context.Context, string, store.ObjectivePatch, store.HierarchyGuard) (okr.Objective, error)
	SetApprovalStatus(context.Context, string, okr.ApprovalStatus) (okr.Objective, error)
	SetObjectiveProgress(context.Context, string, float64) error
	ListAlignments(context.Context) ([]okr.ObjectiveAlignment, error)
	ListAlignmentsFor(context.Context, string) ([]okr.LinkedAlignment, error)
	GetAlignment(context.Context, string) (okr.ObjectiveAlignment, error)
	CreateAlignmentChecked(context.Context, okr.ObjectiveAlignment, store.HierarchyGuard) (okr.ObjectiveAlignment, error)
	DeleteAlignment(context.Context, string) (okr.ObjectiveAlignment, error)
	ListKeyResults(context.Context, string) ([]okr.KeyResult, error)
	GetKeyResult(context.Context, string) (okr.KeyResult, error)
	CreateKeyResult(context.Context, okr.KeyResult) (okr.KeyResult, error)
	SaveKeyResult(context.Context, okr.KeyResult) (okr.KeyResult, error)
	DeleteKeyResult(context.Context, string) (okr.KeyResult, error)
	GetUserRole(context.Context, string) (string, error)
	OwnerNames(context.Context, []string) (map[string]string, error)
}

type searchIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexObjective(okr.Objective)
	ReindexAllFromPG(context.Context) (int, error)
}

type exporter interface {
	Export(context.Context, export.Report, export.Format) (*export.Result, error)
}

type graphMirror interface {
	SyncObjectives(context.Context, ...okr.Objective) error
	SyncAlignments(context.Context, ...okr.ObjectiveAlignment) error
	DeleteAlignment(context.Context, string) error
	Rebuild(context.Context, []okr.Objective, []okr.ObjectiveAlignment) error
}

// sharedCache is a hierarchy source shared between API instances.
type sharedCache interface {
	hierarchy.Source
	Invalidate(ctx context.Context, ids ...string) error
}

// Dependencies are the optional subsystems; nil members are disabled.
type Dependencies struct {
	Search  *search.Service
	Exports *export.Service
	Mirror  *graphsync.Mirror
	Redis   *cache.RedisSource
	Log     *logger.Logger
}

type Service struct {
	cfg      config.Config
	store    dataStore
	shared   sharedCache
	source   *hierarchy.CachedSource
	resolver *hierarchy.Resolver
	builder  *hierarchy.Builder
	search   searchIndex
	exports  exporter
	mirror   graphMirror
	log      *logger.Logger
}

func New(cfg config.Config, dataStore *store.PostgresStore, deps Dependencies) (*Service, error) {
	s := &Service{cfg: cfg, store: dataStore, log: deps.Log}
	if deps.Redis != nil {
		s.shared = deps.Redis
	}
	if deps.Search != nil {
		s.search = deps.Search
	}
	if deps.Exports != nil {
		s.exports = deps.Exports
	}
	if deps.Mirror != nil {
		s.mirror = deps.Mirror
	}
	if err := s.initHierarchy(); err != nil {
		return nil, err
	}
	return s, nil
}

// initHierarchy stacks the in-process cache over the shared cache (when
// configured) over the database.
func (s *Service) initHierarchy() error {
	if s.log == nil {
		s.log = logger.Nop()
	}
	var next hierarchy.Source = s.store
	if s.shared != nil {
		next = s.shared
	}
	source, err := hierarchy.NewCachedSource(next, s.cfg.SourceCacheSize)
	if err != nil {
		return err
	}
	resolver, err := hierarchy.NewResolver(source, s.cfg.AncestorCacheSize, s.log)
	if err != nil {
		return err
	}
	s.source = source
	s.resolver = resolver
	s.builder = hierarchy.NewBuilder(source,
		hierarchy.WithLayout(hierarchy.Layout{
			HorizontalSpacing: s.cfg.HorizontalSpacing,
			VerticalSpacing:   s.cfg.VerticalSpacing,
		}),
		hierarchy.WithMaxNodes(s.cfg.GraphMaxNodes),
		hierarchy.WithLogger(s.log),
	)
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), s.cfg.JWTAudience, token)
	if err != nil {
		return Session{}, err
	}
	role, err := s.store.GetUserRole(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}
	session := Session{
		Token:  token,
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   string(rbac.Normalize(role)),
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) canEdit(session Session, objective okr.Objective) bool {
	return rbac.CanEdit(rbac.Normalize(session.Role), session.UserID, objective.OwnerID)
}

// withHierarchyTimeout bounds hierarchy walks by GRAPH_TIMEOUT.
func (s *Service) withHierarchyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.GraphTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.GraphTimeout)
}

// Objectives

func (s *Service) ListObjectives(ctx context.Context, session Session, filter store.ObjectiveFilter) ([]okr.Objective, error) {
	filter.ViewerID = session.UserID
	objectives, err := s.store.ListObjectives(ctx, filter)
	if err != nil {
		return nil, err
	}
	visible := hierarchy.VisibleTo(session.UserID)
	out := make([]okr.Objective, 0, len(objectives))
	for _, objective := range objectives {
		if visible(objective) {
			out = append(out, objective)
		}
	}
	return out, nil
}

// visibleObjective loads an objective and reports private objectives of other
// users as missing.
func (s *Service) visibleObjective(ctx context.Context, session Session, id string) (okr.ObjectiveWithRelations, error) {
	objective, err := s.store.GetObjectiveWithRelations(ctx, id)
	if err != nil {
		return okr.ObjectiveWithRelations{}, err
	}
	if !hierarchy.VisibleTo(session.UserID)(objective.Objective) {
		return okr.ObjectiveWithRelations{}, okr.ErrNotFound
	}
	return objective, nil
}

func (s *Service) GetObjective(ctx context.Context, session Session, id string) (okr.ObjectiveWithRelations, error) {
	objective, err := s.visibleObjective(ctx, session, id)
	if err != nil {
		return okr.ObjectiveWithRelations{}, err
	}
	return hierarchy.Redact(objective, hierarchy.VisibleTo(session.UserID)), nil
}

func (s *Service) CreateObjective(ctx context.Context, session Session, input CreateObjectiveInput) (okr.Objective, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.CycleID = strings.TrimSpace(input.CycleID)
	if err := validate.Struct(input); err != nil {
		return okr.Objective{}, err
	}
	objective := okr.Objective{
		ID:             util.NewID(""),
		Title:          input.Title,
		Description:    strings.TrimSpace(input.Description),
		CycleID:        input.CycleID,
		OwnerID:        strings.TrimSpace(input.OwnerID),
		Status:         okr.Status(input.Status),
		Visibility:     okr.Visibility(input.Visibility),
		ApprovalStatus: okr.ApprovalPending,
	}
	if objective.OwnerID == "" {
		objective.OwnerID = session.UserID
	}
	if objective.OwnerID != session.UserID && !s.Can(session.Role, rbac.ActionApprove) {
		return okr.Objective{}, forbidden()
	}
	if objective.Status == "" {
		objective.Status = okr.StatusDraft
	}
	if objective.Visibility == "" {
		objective.Visibility = okr.VisibilityTeam
	}
	if parentID := strings.TrimSpace(input.ParentObjectiveID); parentID != "" {
		if _, err := s.visibleObjective(ctx, session, parentID); err != nil {
			if errors.Is(err, okr.ErrNotFound) {
				return okr.Objective{}, okr.ErrInvalidAlignmentEnd
			}
			return okr.Objective{}, err
		}
		objective.ParentObjectiveID = &parentID
	}
	if sbu := strings.TrimSpace(input.SBUID); sbu != "" {
		objective.SBUID = &sbu
	}

	created, err := s.store.CreateObjective(ctx, objective)
	if err != nil {
		return okr.Objective{}, err
	}
	s.objectiveChanged(ctx, created, created.ParentID())
	return created, nil
}

func (s *Service) UpdateObjective(ctx context.Context, session Session, id string, input UpdateObjectiveInput) (okr.Objective, error) {
	if err := validate.Struct(input); err != nil {
		return okr.Objective{}, err
	}
	current, err := s.visibleObjective(ctx, session, id)
	if err != nil {
		return okr.Objective{}, err
	}
	if !s.canEdit(session, current.Objective) {
		return okr.Objective{}, forbidden()
	}

	patch := store.ObjectivePatch{
		Title:             trimmed(input.Title),
		Description:       trimmed(input.Description),
		Progress:          input.Progress,
		ParentObjectiveID: trimmed(input.ParentObjectiveID),
		SBUID:             trimmed(input.SBUID),
	}
	if patch.Title != nil && *patch.Title == "" {
		return okr.Objective{}, invalid("title cannot be empty")
	}
	if input.Status != nil {
		status := okr.Status(*input.Status)
		patch.Status = &status
	}
	if input.Visibility != nil {
		visibility := okr.Visibility(*input.Visibility)
		patch.Visibility = &visibility
	}
	if patch.Empty() {
		return current.Objective, nil
	}

	var guard store.HierarchyGuard
	if patch.ParentObjectiveID != nil && *patch.ParentObjectiveID != current.ParentID() {
		parentID := *patch.ParentObjectiveID
		guard = func(all []okr.Objective, alignments []okr.ObjectiveAlignment) error {
			return hierarchy.ValidateParent(all, alignments, id, parentID)
		}
	}

	updated, err := s.store.UpdateObjectiveChecked(ctx, id, patch, guard)
	if err != nil {
		return okr.Objective{}, err
	}
	s.objectiveChanged(ctx, updated, neighbourhood(current)...)
	return updated, nil
}

func (s *Service) SetApproval(ctx context.Context, session Session, id string, input ApprovalInput) (okr.Objective, error) {
	if !s.Can(session.Role, rbac.ActionApprove) {
		return okr.Objective{}, forbidden()
	}
	if err := validate.Struct(input); err != nil {
		return okr.Objective{}, err
	}
	if _, err := s.visibleObjective(ctx, session, id); err != nil {
		return okr.Objective{}, err
	}
	updated, err := s.store.SetApprovalStatus(ctx, id, okr.ApprovalStatus(input.Status))
	if err != nil {
		return okr.Objective{}, err
	}
	s.objectiveChanged(ctx, updated)
	return updated, nil
}

// Hierarchy

func (s *Service) Tree(ctx context.Context, session Session, id string) (hierarchy.Tree, error) {
	ctx, cancel := s.withHierarchyTimeout(ctx)
	defer cancel()

	start, err := s.visibleObjective(ctx, session, id)
	if err != nil {
		return hierarchy.Tree{}, err
	}
	return s.resolver.Resolve(ctx, start, hierarchy.VisibleTo(session.UserID))
}

type GraphView struct {
	Tree  hierarchy.Tree
	Graph hierarchy.Graph
}

func (v GraphView) Payload() map[string]any {
	flow := render.Flow(v.Graph)
	return map[string]any{
		"rootId":    flow.RootID,
		"path":      v.Tree.Path,
		"degraded":  v.Tree.Degraded,
		"truncated": flow.Truncated,
		"nodes":     flow.Nodes,
		"edges":     flow.Edges,
	}
}

// Graph resolves the root above id and lays out everything below it, with
// the path down to id highlighted. Private objectives of other users are
// left out of both, together with the subtrees below them.
func (s *Service) Graph(ctx context.Context, session Session, id string) (GraphView, error) {
	ctx, cancel := s.withHierarchyTimeout(ctx)
	defer cancel()

	start, err := s.visibleObjective(ctx, session, id)
	if err != nil {
		return GraphView{}, err
	}
	visible := hierarchy.VisibleTo(session.UserID)
	tree, err := s.resolver.Resolve(ctx, start, visible)
	if err != nil {
		return GraphView{}, err
	}
	var root okr.Entity = tree.Root
	if tree.Root.ID == start.ID {
		root = start
	}
	graph, err := s.builder.Build(ctx, root, tree.Path, visible)
	if err != nil {
		return GraphView{}, err
	}
	return GraphView{Tree: tree, Graph: graph}, nil
}

func (s *Service) AlignmentCandidates(ctx context.Context, session Session, id string, filter CandidateFilter) ([]okr.Objective, error) {
	if _, err := s.visibleObjective(ctx, session, id); err != nil {
		return nil, err
	}
	all, alignments, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	preds := []hierarchy.Predicate{hierarchy.VisibleTo(session.UserID)}
	if filter.Visibility != "" {
		if !okr.ValidVisibility(filter.Visibility) {
			return nil, invalid("visibility is not recognised")
		}
		preds = append(preds, hierarchy.WithVisibility(okr.Visibility(filter.Visibility)))
	}
	if filter.SBUID != "" {
		preds = append(preds, hierarchy.WithSBU(filter.SBUID))
	}
	if filter.CycleID != "" {
		preds = append(preds, hierarchy.WithCycle(filter.CycleID))
	}
	if filter.Query != "" {
		preds = append(preds, hierarchy.WithSearch(filter.Query))
	}
	return hierarchy.ValidTargets(all, id, alignments, preds...), nil
}

func (s *Service) snapshot(ctx context.Context) ([]okr.Objective, []okr.ObjectiveAlignment, error) {
	all, err := s.store.ListObjectives(ctx, store.ObjectiveFilter{})
	if err != nil {
		return nil, nil, err
	}
	alignments, err := s.store.ListAlignments(ctx)
	if err != nil {
		return nil, nil, err
	}
	return all, alignments, nil
}

// Integrity reports every cycle in the stored hierarchy.
func (s *Service) Integrity(ctx context.Context, session Session) (map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionAdmin) {
		return nil, forbidden()
	}
	all, alignments, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	cycles := hierarchy.FindCycles(all, alignments)
	if cycles == nil {
		cycles = []hierarchy.Cycle{}
	}
	return map[string]any{
		"ok":         len(cycles) == 0,
		"objectives": len(all),
		"alignments": len(alignments),
		"cycles":     cycles,
	}, nil
}

// Alignments

func (s *Service) ListAlignments(ctx context.Context, session Session, id string) ([]okr.LinkedAlignment, error) {
	if _, err := s.visibleObjective(ctx, session, id); err != nil {
		return nil, err
	}
	alignments, err := s.store.ListAlignmentsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	redacted := hierarchy.Redact(okr.ObjectiveWithRelations{Alignments: alignments}, hierarchy.VisibleTo(session.UserID))
	return redacted.Alignments, nil
}

// CreateAlignment aligns the objective at alignedObjectiveId under sourceID.
// The caller must be able to edit one of the two ends.
func (s *Service) CreateAlignment(ctx context.Context, session Session, sourceID string, input CreateAlignmentInput) (okr.ObjectiveAlignment, error) {
	input.AlignedObjectiveID = strings.TrimSpace(input.AlignedObjectiveID)
	if err := validate.Struct(input); err != nil {
		return okr.ObjectiveAlignment{}, err
	}
	alignmentType := okr.AlignmentType(input.AlignmentType)
	if alignmentType == "" {
		alignmentType = okr.AlignmentParentChild
	}
	weight := 1.0
	if input.Weight != nil {
		weight = *input.Weight
	}

	source, err := s.visibleObjective(ctx, session, sourceID)
	if err != nil {
		return okr.ObjectiveAlignment{}, err
	}
	aligned, err := s.visibleObjective(ctx, session, input.AlignedObjectiveID)
	if errors.Is(err, okr.ErrNotFound) {
		return okr.ObjectiveAlignment{}, okr.ErrInvalidAlignmentEnd
	}
	if err != nil {
		return okr.ObjectiveAlignment{}, err
	}
	if !s.canEdit(session, source.Objective) && !s.canEdit(session, aligned.Objective) {
		return okr.ObjectiveAlignment{}, forbidden()
	}

	created, err := s.store.CreateAlignmentChecked(ctx, okr.ObjectiveAlignment{
		ID:                 util.NewID(""),
		SourceObjectiveID:  sourceID,
		AlignedObjectiveID: input.AlignedObjectiveID,
		AlignmentType:      alignmentType,
		Weight:             weight,
		CreatedBy:          session.UserID,
	}, func(all []okr.Objective, alignments []okr.ObjectiveAlignment) error {
		return hierarchy.ValidateAlignment(all, alignments, sourceID, input.AlignedObjectiveID, alignmentType)
	})
	if err != nil {
		return okr.ObjectiveAlignment{}, err
	}
	s.invalidate(ctx, created.SourceObjectiveID, created.AlignedObjectiveID)
	if s.mirror != nil {
		if err := s.mirror.SyncAlignments(ctx, created); err != nil {
			s.log.Warn("mirror alignment failed", "alignment_id", created.ID, "error", err)
		}
	}
	return created, nil
}

func (s *Service) DeleteAlignment(ctx context.Context, session Session, id string) error {
	alignment, err := s.store.GetAlignment(ctx, id)
	if err != nil {
		return err
	}
	allowed := false
	for _, end := range []string{alignment.SourceObjectiveID, alignment.AlignedObjectiveID} {
		objective, err := s.store.GetObjective(ctx, end)
		if err == nil && s.canEdit(session, objective) {
			allowed = true
			break
		}
	}
	if !allowed {
		return forbidden()
	}

	deleted, err := s.store.DeleteAlignment(ctx, id)
	if err != nil {
		return err
	}
	s.invalidate(ctx, deleted.SourceObjectiveID, deleted.AlignedObjectiveID)
	if s.mirror != nil {
		if err := s.mirror.DeleteAlignment(ctx, deleted.ID); err != nil {
			s.log.Warn("mirror alignment delete failed", "alignment_id", deleted.ID, "error", err)
		}
	}
	return nil
}

// Key results

func (s *Service) ListKeyResults(ctx context.Context, session Session, objectiveID string) ([]okr.KeyResult, error) {
	if _, err := s.visibleObjective(ctx, session, objectiveID); err != nil {
		return nil, err
	}
	keyResults, err := s.store.ListKeyResults(ctx, objectiveID)
	if err != nil {
		return nil, err
	}
	if keyResults == nil {
		keyResults = []okr.KeyResult{}
	}
	return keyResults, nil
}

func (s *Service) CreateKeyResult(ctx context.Context, session Session, objectiveID string, input CreateKeyResultInput) (okr.KeyResult, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := validate.Struct(input); err != nil {
		return okr.KeyResult{}, err
	}
	objective, err := s.visibleObjective(ctx, session, objectiveID)
	if err != nil {
		return okr.KeyResult{}, err
	}
	if !s.canEdit(session, objective.Objective) {
		return okr.KeyResult{}, forbidden()
	}

	kr := okr.KeyResult{
		ID:              util.NewID(""),
		ObjectiveID:     objectiveID,
		Title:           input.Title,
		Description:     strings.TrimSpace(input.Description),
		MeasurementType: okr.MeasurementType(input.MeasurementType),
		StartValue:      input.StartValue,
		CurrentValue:    input.CurrentValue,
		TargetValue:     input.TargetValue,
		BooleanValue:    input.BooleanValue,
		Unit:            strings.TrimSpace(input.Unit),
		Weight:          1,
	}
	if kr.MeasurementType == "" {
		kr.MeasurementType = okr.MeasurementNumeric
	}
	if input.Weight != nil {
		kr.Weight = *input.Weight
	}
	scoreKeyResult(&kr)

	created, err := s.store.CreateKeyResult(ctx, kr)
	if err != nil {
		return okr.KeyResult{}, err
	}
	s.rollUp(ctx, objectiveID)
	return created, nil
}

func (s *Service) UpdateKeyResult(ctx context.Context, session Session, id string, input UpdateKeyResultInput) (okr.KeyResult, error) {
	if err := validate.Struct(input); err != nil {
		return okr.KeyResult{}, err
	}
	kr, err := s.editableKeyResult(ctx, session, id)
	if err != nil {
		return okr.KeyResult{}, err
	}
	if title := trimmed(input.Title); title != nil {
		if *title == "" {
			return okr.KeyResult{}, invalid("title cannot be empty")
		}
		kr.Title = *title
	}
	if input.Description != nil {
		kr.Description = strings.TrimSpace(*input.Description)
	}
	if input.CurrentValue != nil {
		kr.CurrentValue = *input.CurrentValue
	}
	if input.TargetValue != nil {
		kr.TargetValue = *input.TargetValue
	}
	if input.BooleanValue != nil {
		kr.BooleanValue = *input.BooleanValue
	}
	if input.Unit != nil {
		kr.Unit = strings.TrimSpace(*input.Unit)
	}
	if input.Weight != nil {
		kr.Weight = *input.Weight
	}
	scoreKeyResult(&kr)

	saved, err := s.store.SaveKeyResult(ctx, kr)
	if err != nil {
		return okr.KeyResult{}, err
	}
	s.rollUp(ctx, saved.ObjectiveID)
	return saved, nil
}

func (s *Service) DeleteKeyResult(ctx context.Context, session Session, id string) error {
	if _, err := s.editableKeyResult(ctx, session, id); err != nil {
		return err
	}
	deleted, err := s.store.DeleteKeyResult(ctx, id)
	if err != nil {
		return err
	}
	s.rollUp(ctx, deleted.ObjectiveID)
	return nil
}

func (s *Service) editableKeyResult(ctx context.Context, session Session, id string) (okr.KeyResult, error) {
	kr, err := s.store.GetKeyResult(ctx, id)
	if err != nil {
		return okr.KeyResult{}, err
	}
	objective, err := s.visibleObjective(ctx, session, kr.ObjectiveID)
	if err != nil {
		return okr.KeyResult{}, err
	}
	if !s.canEdit(session, objective.Objective) {
		return okr.KeyResult{}, forbidden()
	}
	return kr, nil
}

func scoreKeyResult(kr *okr.KeyResult) {
	kr.Progress = okr.KeyResultProgress(*kr)
	kr.Status = okr.KeyResultStatusFor(kr.Progress)
}

// rollUp recomputes an objective's progress from its key results. The key
// result write already succeeded, so failures here are logged only.
func (s *Service) rollUp(ctx context.Context, objectiveID string) {
	keyResults, err := s.store.ListKeyResults(ctx, objectiveID)
	if err != nil {
		s.log.Warn("progress roll-up skipped", "objective_id", objectiveID, "error", err)
		return
	}
	progress := okr.RollUpProgress(keyResults)
	if err := s.store.SetObjectiveProgress(ctx, objectiveID, progress); err != nil {
		s.log.Warn("progress roll-up failed", "objective_id", objectiveID, "error", err)
		return
	}
	objective, err := s.store.GetObjective(ctx, objectiveID)
	if err != nil {
		s.invalidate(ctx, objectiveID)
		return
	}
	s.objectiveChanged(ctx, objective)
}

// Export and search

func (s *Service) Export(ctx context.Context, session Session, id string, format export.Format) (*export.Result, error) {
	if s.exports == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	view, err := s.Graph(ctx, session, id)
	if err != nil {
		return nil, err
	}

	var focus okr.Objective
	keyResults := make(map[string][]okr.KeyResult, len(view.Graph.Nodes))
	ownerIDs := make([]string, 0, len(view.Graph.Nodes))
	seenOwners := map[string]struct{}{}
	for _, node := range view.Graph.Nodes {
		if node.ID == id {
			focus = node.Objective
		}
		if krs, err := s.store.ListKeyResults(ctx, node.ID); err == nil {
			keyResults[node.ID] = krs
		} else {
			s.log.Warn("export without key results", "objective_id", node.ID, "error", err)
		}
		if _, ok := seenOwners[node.Objective.OwnerID]; !ok && node.Objective.OwnerID != "" {
			seenOwners[node.Objective.OwnerID] = struct{}{}
			ownerIDs = append(ownerIDs, node.Objective.OwnerID)
		}
	}
	if focus.ID == "" {
		focus = view.Tree.Root
	}
	names, err := s.store.OwnerNames(ctx, ownerIDs)
	if err != nil {
		s.log.Warn("owner names unavailable", "error", err)
		names = nil
	}

	report := export.BuildReport(view.Graph, focus, view.Tree.Degraded, keyResults, names)
	return s.exports.Export(ctx, report, format)
}

func (s *Service) Search(ctx context.Context, session Session, q search.Query) search.Response {
	q.ViewerID = session.UserID
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

// Reindex pushes every objective to the search index and the graph mirror.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	indexed := 0
	if s.search != nil {
		n, err := s.search.ReindexAllFromPG(ctx)
		if err != nil {
			return 0, err
		}
		indexed = n
	}
	if s.mirror != nil {
		all, alignments, err := s.snapshot(ctx)
		if err != nil {
			return indexed, err
		}
		if err := s.mirror.Rebuild(ctx, all, alignments); err != nil {
			return indexed, err
		}
	}
	return indexed, nil
}

// Cache upkeep

// objectiveChanged drops cached copies of objective and of every id in
// related, then pushes the objective to search and the graph mirror.
func (s *Service) objectiveChanged(ctx context.Context, objective okr.Objective, related ...string) {
	ids := append([]string{objective.ID, objective.ParentID()}, related...)
	s.invalidate(ctx, ids...)
	if s.search != nil {
		s.search.IndexObjective(objective)
	}
	if s.mirror != nil {
		if err := s.mirror.SyncObjectives(ctx, objective); err != nil {
			s.log.Warn("mirror objective failed", "objective_id", objective.ID, "error", err)
		}
	}
}

func (s *Service) invalidate(ctx context.Context, ids ...string) {
	ids = compactIDs(ids)
	if len(ids) == 0 {
		return
	}
	s.source.Invalidate(ids...)
	s.resolver.Forget(ids...)
	if s.shared != nil {
		if err := s.shared.Invalidate(ctx, ids...); err != nil {
			s.log.Warn("shared cache invalidation failed", "ids", ids, "error", err)
		}
	}
}

// neighbourhood lists every objective whose cached relations embed a copy of
// rel: its parent, its children and the far end of each alignment.
func neighbourhood(rel okr.ObjectiveWithRelations) []string {
	ids := []string{rel.ID, rel.ParentID()}
	for _, child := range rel.ChildObjectives {
		ids = append(ids, child.ID)
	}
	for _, group := range [][]okr.LinkedAlignment{rel.Alignments, rel.SupportedBy} {
		for _, alignment := range group {
			ids = append(ids, alignment.SourceObjectiveID, alignment.AlignedObjectiveID)
		}
	}
	return ids
}

func compactIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
