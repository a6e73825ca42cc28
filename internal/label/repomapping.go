package label

import "sort"

// RepoMapping maps apparent repository names, as written in build
// description files, to canonical repository names. Immutable after
// construction; a nil mapping behaves as empty.
type RepoMapping struct {
	owner   RepoName
	entries map[string]RepoName
}

// NewRepoMapping copies entries into a mapping owned by owner. The owner
// is the repository whose build description files the mapping applies to.
func NewRepoMapping(owner RepoName, entries map[string]RepoName) *RepoMapping {
	m := &RepoMapping{owner: owner}
	if len(entries) > 0 {
		m.entries = make(map[string]RepoName, len(entries))
		for apparent, canonical := range entries {
			m.entries[apparent] = canonical
		}
	}
	return m
}

// Owner returns the repository this mapping belongs to.
func (m *RepoMapping) Owner() RepoName {
	if m == nil {
		return MainRepo
	}
	return m.owner
}

// Get resolves an apparent repository name.
func (m *RepoMapping) Get(apparent string) (RepoName, bool) {
	if m == nil {
		return "", false
	}
	canonical, ok := m.entries[apparent]
	return canonical, ok
}

// Len returns the number of entries.
func (m *RepoMapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// ApparentNames returns the apparent names in sorted order.
func (m *RepoMapping) ApparentNames() []string {
	if m == nil || len(m.entries) == 0 {
		return nil
	}
	names := make([]string, 0, len(m.entries))
	for apparent := range m.entries {
		names = append(names, apparent)
	}
	sort.Strings(names)
	return names
}
