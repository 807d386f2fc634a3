package listview

import "github.com/Sternrassler/people-pager/pkg/pagination"

// ItemSet is an ordered set of display models keyed on DisplayModel.Key.
// Insertion order is display order. It is not safe for concurrent use.
type ItemSet struct {
	order []pagination.DisplayModel
	index map[string]int
}

// NewItemSet creates an empty set.
func NewItemSet() *ItemSet {
	return &ItemSet{index: make(map[string]int)}
}

// Append adds models that are not already present and returns how many were added.
func (s *ItemSet) Append(models ...pagination.DisplayModel) int {
	added := 0
	for _, m := range models {
		if _, ok := s.index[m.Key()]; ok {
			continue
		}
		s.index[m.Key()] = len(s.order)
		s.order = append(s.order, m)
		added++
	}
	return added
}

// Contains reports whether a model with the given key is present.
func (s *ItemSet) Contains(key string) bool {
	_, ok := s.index[key]
	return ok
}

// IndexOf returns the position of key, or -1.
func (s *ItemSet) IndexOf(key string) int {
	if i, ok := s.index[key]; ok {
		return i
	}
	return -1
}

// At returns the model at position i.
func (s *ItemSet) At(i int) pagination.DisplayModel {
	return s.order[i]
}

// Len returns the number of models.
func (s *ItemSet) Len() int {
	return len(s.order)
}

// Items returns a copy of the models in display order.
func (s *ItemSet) Items() []pagination.DisplayModel {
	out := make([]pagination.DisplayModel, len(s.order))
	copy(out, s.order)
	return out
}

// Clear removes every model.
func (s *ItemSet) Clear() {
	s.order = nil
	s.index = make(map[string]int)
}
