package state

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// presenceMarker is the value stored per path in the persisted snapshot.
const presenceMarker = 1

// PathState is the set of absolute paths under one root that are believed to
// be mirrored to the opposite root. It is advisory: the other side may have
// changed behind our back and callers must re-check the filesystem.
type PathState struct {
	paths mapset.Set[string]
}

func NewPathState(paths ...string) *PathState {
	return &PathState{paths: mapset.NewSet(paths...)}
}

// FromMarkers builds a PathState from the persisted form.
func FromMarkers(markers map[string]int) *PathState {
	s := NewPathState()
	for path := range markers {
		s.paths.Add(path)
	}
	return s
}

func (s *PathState) Add(path string) {
	s.paths.Add(path)
}

func (s *PathState) Remove(path string) {
	s.paths.Remove(path)
}

func (s *PathState) Contains(path string) bool {
	return s.paths.Contains(path)
}

func (s *PathState) Len() int {
	return s.paths.Cardinality()
}

// Paths returns a sorted copy of the members.
func (s *PathState) Paths() []string {
	paths := s.paths.ToSlice()
	sort.Strings(paths)
	return paths
}

// Markers returns the persisted form: path -> presence marker.
func (s *PathState) Markers() map[string]int {
	markers := make(map[string]int, s.paths.Cardinality())
	s.paths.Each(func(path string) bool {
		markers[path] = presenceMarker
		return false
	})
	return markers
}
