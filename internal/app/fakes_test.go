package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"okrhub/api/internal/auth"
	"okrhub/api/internal/config"
	"okrhub/api/internal/export"
	"okrhub/api/internal/okr"
	"okrhub/api/internal/search"
	"okrhub/api/internal/store"
)

const (
	testSecret   = "test-secret"
	testAudience = "authenticated"
)

// fakeStore is an in-memory dataStore. Objectives keep insertion order so
// list and child ordering is deterministic.
type fakeStore struct {
	mu         sync.Mutex
	order      []string
	objectives map[string]okr.Objective
	alignments []okr.ObjectiveAlignment
	keyResults []okr.KeyResult
	roles      map[string]string
	names      map[string]string
	nextID     int

	pingFn         func(context.Context) error
	relationsCalls map[string]int
	progressWrites map[string]float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objectives:     map[string]okr.Objective{},
		roles:          map[string]string{},
		names:          map[string]string{},
		relationsCalls: map[string]int{},
		progressWrites: map[string]float64{},
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) put(o okr.Objective) okr.Objective {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.Status == "" {
		o.Status = okr.StatusInProgress
	}
	if o.Visibility == "" {
		o.Visibility = okr.VisibilityOrganization
	}
	if _, ok := f.objectives[o.ID]; !ok {
		f.order = append(f.order, o.ID)
	}
	f.objectives[o.ID] = o
	return o
}

func (f *fakeStore) align(source, aligned string) okr.ObjectiveAlignment {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := okr.ObjectiveAlignment{
		ID:                 f.id("al"),
		SourceObjectiveID:  source,
		AlignedObjectiveID: aligned,
		AlignmentType:      okr.AlignmentParentChild,
		Weight:             1,
	}
	f.alignments = append(f.alignments, a)
	return a
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) ListObjectives(_ context.Context, filter store.ObjectiveFilter) ([]okr.Objective, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listObjectives(filter), nil
}

func (f *fakeStore) listObjectives(filter store.ObjectiveFilter) []okr.Objective {
	out := []okr.Objective{}
	for _, id := range f.order {
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
		o := f.objectives[id]
		if filter.CycleID != "" && o.CycleID != filter.CycleID {
			continue
		}
		if filter.OwnerID != "" && o.OwnerID != filter.OwnerID {
			continue
		}
		if filter.ViewerID != "" && o.Visibility == okr.VisibilityPrivate && o.OwnerID != filter.ViewerID {
			continue
		}
		out = append(out, o)
	}
	return out
}

// checked runs guard against the current state while holding the store lock,
// the way the postgres store holds its hierarchy lock.
func (f *fakeStore) checked(guard store.HierarchyGuard) error {
	if guard == nil {
		return nil
	}
	return guard(f.listObjectives(store.ObjectiveFilter{}), append([]okr.ObjectiveAlignment(nil), f.alignments...))
}

func (f *fakeStore) GetObjective(_ context.Context, id string) (okr.Objective, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objectives[id]
	if !ok {
		return okr.Objective{}, fmt.Errorf("get objective %s: %w", id, okr.ErrNotFound)
	}
	return o, nil
}

func (f *fakeStore) GetObjectiveWithRelations(_ context.Context, id string) (okr.ObjectiveWithRelations, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relationsCalls[id]++
	o, ok := f.objectives[id]
	if !ok {
		return okr.ObjectiveWithRelations{}, fmt.Errorf("get objective %s: %w", id, okr.ErrNotFound)
	}
	rel := okr.ObjectiveWithRelations{Objective: o}
	if parent, ok := f.objectives[o.ParentID()]; ok {
		rel.ParentObjective = &parent
	}
	for _, childID := range f.order {
		if child := f.objectives[childID]; child.ParentID() == id {
			rel.ChildObjectives = append(rel.ChildObjectives, child)
		}
	}
	for _, a := range f.alignments {
		switch id {
		case a.SourceObjectiveID:
			far := f.objectives[a.AlignedObjectiveID]
			rel.Alignments = append(rel.Alignments, okr.LinkedAlignment{ObjectiveAlignment: a, Objective: &far})
		case a.AlignedObjectiveID:
			far := f.objectives[a.SourceObjectiveID]
			rel.SupportedBy = append(rel.SupportedBy, okr.LinkedAlignment{ObjectiveAlignment: a, Objective: &far})
		}
	}
	for _, kr := range f.keyResults {
		if kr.ObjectiveID == id {
			rel.KeyResults = append(rel.KeyResults, kr)
		}
	}
	return rel, nil
}

func (f *fakeStore) CreateObjective(_ context.Context, o okr.Objective) (okr.Objective, error) {
	f.mu.Lock()
	o.ID = f.id("obj")
	f.mu.Unlock()
	return f.put(o), nil
}

func (f *fakeStore) UpdateObjectiveChecked(_ context.Context, id string, patch store.ObjectivePatch, guard store.HierarchyGuard) (okr.Objective, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checked(guard); err != nil {
		return okr.Objective{}, err
	}
	o, ok := f.objectives[id]
	if !ok {
		return okr.Objective{}, okr.ErrNotFound
	}
	if patch.Title != nil {
		o.Title = *patch.Title
	}
	if patch.Description != nil {
		o.Description = *patch.Description
	}
	if patch.Status != nil {
		o.Status = *patch.Status
	}
	if patch.Progress != nil {
		o.Progress = *patch.Progress
	}
	if patch.Visibility != nil {
		o.Visibility = *patch.Visibility
	}
	if patch.ParentObjectiveID != nil {
		if *patch.ParentObjectiveID == "" {
			o.ParentObjectiveID = nil
		} else {
			parent := *patch.ParentObjectiveID
			o.ParentObjectiveID = &parent
		}
	}
	f.objectives[id] = o
	return o, nil
}

func (f *fakeStore) SetApprovalStatus(_ context.Context, id string, status okr.ApprovalStatus) (okr.Objective, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objectives[id]
	if !ok {
		return okr.Objective{}, okr.ErrNotFound
	}
	o.ApprovalStatus = status
	f.objectives[id] = o
	return o, nil
}

func (f *fakeStore) SetObjectiveProgress(_ context.Context, id string, progress float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.objectives[id]
	o.Progress = progress
	f.objectives[id] = o
	f.progressWrites[id] = progress
	return nil
}

func (f *fakeStore) ListAlignments(context.Context) ([]okr.ObjectiveAlignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]okr.ObjectiveAlignment(nil), f.alignments...), nil
}

func (f *fakeStore) ListAlignmentsFor(ctx context.Context, id string) ([]okr.LinkedAlignment, error) {
	rel, err := f.GetObjectiveWithRelations(ctx, id)
	if err != nil {
		return nil, err
	}
	return append(rel.Alignments, rel.SupportedBy...), nil
}

func (f *fakeStore) GetAlignment(_ context.Context, id string) (okr.ObjectiveAlignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.alignments {
		if a.ID == id {
			return a, nil
		}
	}
	return okr.ObjectiveAlignment{}, okr.ErrNotFound
}

func (f *fakeStore) CreateAlignmentChecked(_ context.Context, a okr.ObjectiveAlignment, guard store.HierarchyGuard) (okr.ObjectiveAlignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checked(guard); err != nil {
		return okr.ObjectiveAlignment{}, err
	}
	a.ID = f.id("al")
	f.alignments = append(f.alignments, a)
	return a, nil
}

func (f *fakeStore) DeleteAlignment(_ context.Context, id string) (okr.ObjectiveAlignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.alignments {
		if a.ID == id {
			f.alignments = append(f.alignments[:i], f.alignments[i+1:]...)
			return a, nil
		}
	}
	return okr.ObjectiveAlignment{}, okr.ErrNotFound
}

func (f *fakeStore) ListKeyResults(_ context.Context, objectiveID string) ([]okr.KeyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []okr.KeyResult
	for _, kr := range f.keyResults {
		if kr.ObjectiveID == objectiveID {
			out = append(out, kr)
		}
	}
	return out, nil
}

func (f *fakeStore) GetKeyResult(_ context.Context, id string) (okr.KeyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, kr := range f.keyResults {
		if kr.ID == id {
			return kr, nil
		}
	}
	return okr.KeyResult{}, okr.ErrNotFound
}

func (f *fakeStore) CreateKeyResult(_ context.Context, kr okr.KeyResult) (okr.KeyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kr.ID = f.id("kr")
	f.keyResults = append(f.keyResults, kr)
	return kr, nil
}

func (f *fakeStore) SaveKeyResult(_ context.Context, kr okr.KeyResult) (okr.KeyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.keyResults {
		if f.keyResults[i].ID == kr.ID {
			f.keyResults[i] = kr
			return kr, nil
		}
	}
	return okr.KeyResult{}, okr.ErrNotFound
}

func (f *fakeStore) DeleteKeyResult(_ context.Context, id string) (okr.KeyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, kr := range f.keyResults {
		if kr.ID == id {
			f.keyResults = append(f.keyResults[:i], f.keyResults[i+1:]...)
			return kr, nil
		}
	}
	return okr.KeyResult{}, okr.ErrNotFound
}

func (f *fakeStore) GetUserRole(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if role, ok := f.roles[userID]; ok {
		return role, nil
	}
	return "member", nil
}

func (f *fakeStore) OwnerNames(_ context.Context, ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for _, id := range ids {
		if name, ok := f.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed []string
	query   search.Query
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = q
	return search.Response{Results: []search.Result{{ID: "A", Title: "Company"}}, Total: 1, Query: q.Text}
}

func (f *fakeSearch) IndexObjective(o okr.Objective) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, o.ID)
}

func (f *fakeSearch) ReindexAllFromPG(context.Context) (int, error) { return 0, nil }

type fakeExporter struct {
	report export.Report
}

func (f *fakeExporter) Export(_ context.Context, report export.Report, format export.Format) (*export.Result, error) {
	f.report = report
	return &export.Result{Data: []byte("report"), Filename: "report." + string(format), MimeType: "text/plain"}, nil
}

func newTestService(t *testing.T, fs *fakeStore) *Service {
	t.Helper()
	svc := &Service{
		cfg: config.Config{
			JWTSecret:    testSecret,
			JWTAudience:  testAudience,
			GraphTimeout: 5 * time.Second,
		},
		store: fs,
	}
	if err := svc.initHierarchy(); err != nil {
		t.Fatalf("initHierarchy: %v", err)
	}
	return svc
}

func testToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.Claims{
		Email: userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func strPtr(value string) *string { return &value }

// exampleHierarchy stores A with children B and C, and D under B.
func exampleHierarchy(fs *fakeStore) {
	fs.put(okr.Objective{ID: "A", Title: "Company", OwnerID: "ceo", CycleID: "2026-q4"})
	fs.put(okr.Objective{ID: "B", Title: "Sales", OwnerID: "alice", CycleID: "2026-q4", ParentObjectiveID: strPtr("A")})
	fs.put(okr.Objective{ID: "C", Title: "Product", OwnerID: "bob", CycleID: "2026-q4", ParentObjectiveID: strPtr("A")})
	fs.put(okr.Objective{ID: "D", Title: "EU deals", OwnerID: "alice", CycleID: "2026-q4", ParentObjectiveID: strPtr("B")})
}
