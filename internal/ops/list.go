package ops

import (
	"database/sql"

	"github.com/hpungsan/minutes/internal/db"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
	Search string // optional title filter
	State  string // optional state filter
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []RecordingSummary `json:"items"`
	Pagination Pagination         `json:"pagination"`
	Sort       string             `json:"sort"`
}

// List retrieves recordings newest first with pagination.
func List(database *sql.DB, input ListInput) (*ListOutput, error) {
	state, err := parseStateFilter(input.State)
	if err != nil {
		return nil, err
	}

	limit := clampLimit(input.Limit, DefaultListLimit, MaxListLimit)
	offset := max(input.Offset, 0)

	// One extra row tells us whether another page exists
	recs, err := db.ListRecordings(database, db.ListOptions{
		Limit:  limit + 1,
		Offset: offset,
		Search: input.Search,
		State:  state,
	})
	if err != nil {
		return nil, err
	}

	hasMore := len(recs) > limit
	if hasMore {
		recs = recs[:limit]
	}

	items := make([]RecordingSummary, 0, len(recs))
	for _, r := range recs {
		items = append(items, SummaryOf(r))
	}

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: hasMore,
		},
		Sort: "created_at_desc",
	}, nil
}
