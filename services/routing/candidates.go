package routing

import "strings"

// BuildCandidates returns the primary model followed by the fallbacks,
// trimmed, without blanks or duplicates, capped at maxCandidates. A
// non-positive cap means no cap.
func BuildCandidates(primary string, fallbacks []string, maxCandidates int) []string {
	all := make([]string, 0, len(fallbacks)+1)
	all = append(all, primary)
	all = append(all, fallbacks...)

	seen := make(map[string]struct{}, len(all))
	candidates := make([]string, 0, len(all))
	for _, name := range all {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		candidates = append(candidates, name)
		if maxCandidates > 0 && len(candidates) == maxCandidates {
			break
		}
	}
	return candidates
}
