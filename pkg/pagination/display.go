package pagination

import "fmt"

// DisplayModel is the list-ready form of a Record.
//
// Identity is the ID alone: rendering layers must dedupe and diff on Key(),
// never on struct equality, since two models for the same record may carry
// different labels.
type DisplayModel struct {
	ID    string
	Label string
}

// NewDisplayModel builds the display model for r. The label reads "<name> (<id>)".
func NewDisplayModel(r Record) DisplayModel {
	return DisplayModel{
		ID:    r.ID,
		Label: fmt.Sprintf("%s (%s)", r.Name, r.ID),
	}
}

// Key returns the identity used for hashing and deduplication.
func (m DisplayModel) Key() string {
	return m.ID
}

// Equal reports whether m and other represent the same record.
func (m DisplayModel) Equal(other DisplayModel) bool {
	return m.ID == other.ID
}

// ToDisplayModels maps records in order. The result is never nil.
func ToDisplayModels(records []Record) []DisplayModel {
	models := make([]DisplayModel, 0, len(records))
	for _, r := range records {
		models = append(models, NewDisplayModel(r))
	}
	return models
}
