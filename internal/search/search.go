package search

import (
	"context"

	"okrhub/api/internal/okr"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	CycleID    string `json:"cycleId"`
	OwnerID    string `json:"ownerId"`
	Status     string `json:"status"`
	Visibility string `json:"visibility"`
	SBUID      string `json:"sbuId,omitempty"`
}

// Query describes a search request. ViewerID hides other users' private
// objectives.
type Query struct {
	Text     string
	CycleID  string
	ViewerID string
	Limit    int
	Offset   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// ObjectiveRecord is the data we index for an objective.
type ObjectiveRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CycleID     string `json:"cycleId"`
	OwnerID     string `json:"ownerId"`
	Status      string `json:"status"`
	Visibility  string `json:"visibility"`
	SBUID       string `json:"sbuId"`
	ParentID    string `json:"parentId"`
}

func RecordFor(o okr.Objective) ObjectiveRecord {
	record := ObjectiveRecord{
		ID:          o.ID,
		Title:       o.Title,
		Description: o.Description,
		CycleID:     o.CycleID,
		OwnerID:     o.OwnerID,
		Status:      string(o.Status),
		Visibility:  string(o.Visibility),
		ParentID:    o.ParentID(),
	}
	if o.SBUID != nil {
		record.SBUID = *o.SBUID
	}
	return record
}
