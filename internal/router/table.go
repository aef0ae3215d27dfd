package router

import "strings"

// routeEntry is one (method, path-template) -> Asset binding.
type routeEntry struct {
	method   string
	template []string // split path segments, "{name}" for a variable
	asset    Asset
}

// Table is the routing table: matches a request to an Asset, tie-breaking
// literal segments over variables and longer templates over shorter ones
// (spec.md §4.6).
type Table struct {
	entries []routeEntry
}

func NewTable() *Table {
	return &Table{}
}

// Register adds one route. template is a path template like
// "/api/{name}" or "/router/llm/{model}".
func (t *Table) Register(method, template string, asset Asset) {
	t.entries = append(t.entries, routeEntry{
		method:   method,
		template: splitTemplate(template),
		asset:    asset,
	})
}

func splitTemplate(template string) []string {
	trimmed := strings.Trim(template, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Match finds the best Asset for (method, path), returning the matched
// path params and ok=false if nothing matches (-> 404 per spec.md §6).
func (t *Table) Match(method, path string) (Asset, map[string]string, bool) {
	segments := splitTemplate(path)

	var best *routeEntry
	var bestParams map[string]string
	bestScore := -1

	for i := range t.entries {
		e := &t.entries[i]
		if e.method != method {
			continue
		}
		params, score, ok := matchTemplate(e.template, segments)
		if !ok {
			continue
		}
		// Prefer more literal segments, then longer templates.
		if score > bestScore || (score == bestScore && best != nil && len(e.template) > len(best.template)) {
			best = e
			bestParams = params
			bestScore = score
		}
	}

	if best == nil {
		return Asset{}, nil, false
	}
	return best.asset, bestParams, true
}

// matchTemplate matches segments against template; score is the count of
// literal (non-variable) segments matched, used to prefer literal-over-
// variable routes per spec.md's tie-break rule.
func matchTemplate(template, segments []string) (map[string]string, int, bool) {
	if len(template) != len(segments) {
		return nil, 0, false
	}
	params := make(map[string]string)
	score := 0
	for i, t := range template {
		if strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}") {
			name := t[1 : len(t)-1]
			params[name] = segments[i]
			continue
		}
		if t != segments[i] {
			return nil, 0, false
		}
		score++
	}
	return params, score, true
}
