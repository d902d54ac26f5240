package policy

import "strings"

// DefaultAdjacentStates is the approved cross-border operating table.
// Symmetric: every pair is listed from both sides by NewAdjacency.
var DefaultAdjacentStates = map[string][]string{
	"CA": {"NV", "AZ", "OR"},
	"OR": {"WA", "ID", "NV"},
	"WA": {"ID"},
	"NV": {"AZ", "UT", "ID"},
	"AZ": {"UT", "NM"},
	"NY": {"NJ", "CT", "PA", "VT", "MA"},
	"NJ": {"PA", "DE"},
	"MA": {"CT", "RI", "NH", "VT"},
	"DC": {"MD", "VA"},
	"MD": {"VA", "DE", "PA"},
	"IL": {"IN", "WI", "IA", "MO", "KY"},
	"TX": {"OK", "NM", "LA", "AR"},
	"FL": {"GA", "AL"},
	"GA": {"AL", "SC", "NC", "TN"},
}

// Adjacency answers whether two states are approved neighbours.
type Adjacency map[string]map[string]bool

// NewAdjacency builds a symmetric lookup from a one-sided table.
func NewAdjacency(table map[string][]string) Adjacency {
	adj := make(Adjacency)
	add := func(a, b string) {
		if adj[a] == nil {
			adj[a] = make(map[string]bool)
		}
		adj[a][b] = true
	}
	for state, neighbours := range table {
		s := NormalizeState(state)
		for _, n := range neighbours {
			n = NormalizeState(n)
			add(s, n)
			add(n, s)
		}
	}
	return adj
}

// Allows reports whether a claim in claimState is inside the operating area
// of a member registered in homeState.
func (a Adjacency) Allows(homeState, claimState string) bool {
	home, claim := NormalizeState(homeState), NormalizeState(claimState)
	if home == claim {
		return true
	}
	return a[home][claim]
}

// NormalizeState upper-cases and trims a two-letter state code.
func NormalizeState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
