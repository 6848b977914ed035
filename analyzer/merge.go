package analyzer

import (
	"github.com/rorkai/21st-sub000/catalog"
	"github.com/rorkai/21st-sub000/processor/ast"
)

// merger unions the dependencies of the component and its demos.
type merger struct {
	self  catalog.Ref
	known map[string]catalog.Ref // slug → first known ref

	libraries  ast.LibraryDeps
	direct     []catalog.Ref
	directKeys map[string]bool

	ambiguous    []ast.UnknownDependency
	ambiguousIdx map[[2]string]int
}

func newMerger(self catalog.Ref, known []catalog.Ref) *merger {
	m := &merger{
		self:         self,
		known:        make(map[string]catalog.Ref, len(known)),
		libraries:    ast.LibraryDeps{},
		directKeys:   make(map[string]bool),
		ambiguousIdx: make(map[[2]string]int),
	}
	for _, ref := range known {
		if ref.IsAmbiguous() {
			continue
		}
		if _, ok := m.known[ref.Slug]; !ok {
			m.known[ref.Slug] = ref
		}
	}
	return m
}

func (m *merger) isSelf(ref catalog.Ref) bool {
	return m.self.Owner != "" && ref.Key() == m.self.Key()
}

func (m *merger) addDirect(ref catalog.Ref) {
	if m.isSelf(ref) || m.directKeys[ref.Key()] {
		return
	}
	m.directKeys[ref.Key()] = true
	m.direct = append(m.direct, ref)
}

func (m *merger) add(deps ast.Dependencies) {
	m.libraries.Merge(deps.Libraries)

	for _, d := range deps.Direct {
		m.addDirect(catalog.Ref{Owner: d.Owner, Slug: d.Slug})
	}

	for _, u := range deps.Ambiguous {
		key := [2]string{u.Category, u.SlugWithOwnerMissing}
		if i, ok := m.ambiguousIdx[key]; ok {
			// A component import outranks a demo import of the same entry.
			if !u.IsDemoDependency {
				m.ambiguous[i].IsDemoDependency = false
			}
			continue
		}
		m.ambiguousIdx[key] = len(m.ambiguous)
		m.ambiguous = append(m.ambiguous, u)
	}
}

// finish settles ambiguous imports against the submission's own identity,
// the known refs and the direct imports, all matched by slug since an
// ambiguous import carries no owner. Known refs that settle an import become
// direct dependencies.
func (m *merger) finish() (ast.LibraryDeps, []catalog.Ref, []ast.UnknownDependency) {
	pending := []ast.UnknownDependency{}
	for _, u := range m.ambiguous {
		slug := u.SlugWithOwnerMissing
		if m.self.Slug != "" && slug == m.self.Slug {
			continue
		}
		if ref, ok := m.known[slug]; ok {
			if ref.Category == "" {
				ref.Category = u.Category
			}
			m.addDirect(ref)
			continue
		}
		if m.hasDirectSlug(slug) {
			continue
		}
		pending = append(pending, u)
	}

	direct := m.direct
	if direct == nil {
		direct = []catalog.Ref{}
	}
	return m.libraries, direct, pending
}

func (m *merger) hasDirectSlug(slug string) bool {
	for _, d := range m.direct {
		if d.Slug == slug {
			return true
		}
	}
	return false
}
