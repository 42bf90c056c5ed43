package model

// UpsertAction is the outcome of reconciling one row.
type UpsertAction string

const (
	ActionInserted  UpsertAction = "inserted"
	ActionUpdated   UpsertAction = "updated"
	ActionUnchanged UpsertAction = "unchanged"
)

// ActionFromAffected classifies an upsert by its affected-row count using
// insert-then-update accounting: 1 is a fresh insert, 2 is a conflicting
// insert that changed the existing row, anything else left it untouched.
func ActionFromAffected(n int64) UpsertAction {
	switch n {
	case 1:
		return ActionInserted
	case 2:
		return ActionUpdated
	default:
		return ActionUnchanged
	}
}

// UpsertResult is the outcome of a single-row upsert.
type UpsertResult struct {
	ID     int64        `json:"id"`
	Action UpsertAction `json:"action"`
}

// UpsertStats aggregates upsert outcomes for a batch.
type UpsertStats struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Attempted int `json:"attempted"`
}

// Add records one outcome.
func (s *UpsertStats) Add(a UpsertAction) {
	switch a {
	case ActionInserted:
		s.Inserted++
	case ActionUpdated:
		s.Updated++
	default:
		s.Unchanged++
	}
	s.Attempted++
}

// Merge folds other into s.
func (s *UpsertStats) Merge(other UpsertStats) {
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
	s.Attempted += other.Attempted
}
