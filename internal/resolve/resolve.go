// Package resolve computes effective component configuration from registry
// defaults and stored scope documents.
package resolve

import (
	"sort"

	"github.com/eltrade/mnconfig/internal/store"
)

type scopeID struct {
	scopeType string
	scopeKey  string
}

// Latest keeps the highest version of each (scopeType, scopeKey) pair. The
// result is ordered by the first appearance of each pair in docs.
func Latest(docs []store.Document) []store.Document {
	index := make(map[scopeID]int)
	var out []store.Document
	for _, d := range docs {
		id := scopeID{d.ScopeType, d.ScopeKey}
		i, seen := index[id]
		if !seen {
			index[id] = len(out)
			out = append(out, d)
			continue
		}
		if d.Version > out[i].Version {
			out[i] = d
		}
	}
	return out
}

// specificity ranks scopes: global < page < route, longer keys are more
// specific within page and route.
func specificity(d store.Document) (int, int) {
	switch d.ScopeType {
	case store.ScopePage:
		return 1, len(d.ScopeKey)
	case store.ScopeRoute:
		return 2, len(d.ScopeKey)
	}
	return 0, 0
}

// SortBySpecificity orders docs least specific first. The sort is stable.
func SortBySpecificity(docs []store.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		ri, li := specificity(docs[i])
		rj, lj := specificity(docs[j])
		if ri != rj {
			return ri < rj
		}
		return li < lj
	})
}

// Effective merges the latest documents of one component over its default:
// global scopes first, then the page scope equal to page, then every route
// scope whose pattern matches route, least specific first. Empty page or
// route skip their layer. The result is an object unless a stored value
// that is not an object replaced it.
func Effective(defaults map[string]interface{}, docs []store.Document, route, page string) interface{} {
	if defaults == nil {
		defaults = map[string]interface{}{}
	}
	var effective interface{} = defaults

	var globals, pages, routes []store.Document
	for _, d := range Latest(docs) {
		switch d.ScopeType {
		case store.ScopeGlobal:
			globals = append(globals, d)
		case store.ScopePage:
			if page != "" && d.ScopeKey == page {
				pages = append(pages, d)
			}
		case store.ScopeRoute:
			if route != "" && MatchRoute(d.ScopeKey, route) {
				routes = append(routes, d)
			}
		}
	}

	for _, layer := range [][]store.Document{globals, pages, routes} {
		SortBySpecificity(layer)
		for _, d := range layer {
			effective = DeepMerge(effective, d.Value)
		}
	}
	return effective
}
