package diagnostic

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Suggest returns the closest candidate name to target (e.g. for a
// VariableNotFound/ReservedName error's "did you mean @x?" hint), or "" if
// nothing is close enough. Uses the same fuzzy-matching approach as
// decorator-name suggestions, generalized here to variable names.
func Suggest(target string, candidates []string) string {
	if target == "" || len(candidates) == 0 {
		return ""
	}

	ranked := fuzzy.RankFindNormalizedFold(target, candidates)
	if len(ranked) == 0 {
		return ""
	}
	sort.Sort(ranked)

	best := ranked[0]
	// A distance of more than half the target's length (rounded up) plus
	// one is not a helpful suggestion — avoid "did you mean @z?" noise on a
	// short, unrelated name.
	if best.Distance > (len(target)+1)/2+1 {
		return ""
	}
	return best.Target
}
