package crew

import (
	"sort"
	"strings"
	"unicode"

	"github.com/crewmind-ai/crewmind/routing"
)

// point is one normalized statement extracted from an agent output, with the
// agents supporting it.
type point struct {
	gist     string
	original string
	agents   []string
}

// recommendationMarkers identify statements phrased as advice.
var recommendationMarkers = []string{
	"recommend", "should", "must", "suggest", "consider", "prefer",
}

// stancePairs are opposing directions two recommendations can take on the
// same subject. Divergence detection is a heuristic flag, as with the
// auditor's conflict rules.
var stancePairs = [][2]string{
	{"increase", "decrease"},
	{"enable", "disable"},
	{"adopt", "avoid"},
	{"use", "avoid"},
	{"add", "remove"},
	{"accept", "reject"},
}

// aggregateOutputs distills per-agent outputs into consensus points,
// divergent points, and ranked recommendations. ranks maps agent id to
// priority rank for tie-breaking.
func aggregateOutputs(outputs map[string]string, ranks map[string]int) (consensus, divergent, recommendations []string) {
	points := collectPoints(outputs)

	for _, p := range points {
		if len(p.agents) >= 2 {
			consensus = append(consensus, p.original)
		}
	}
	sort.Strings(consensus)

	recs := make([]point, 0, len(points))
	for _, p := range points {
		if isRecommendation(p.gist) {
			recs = append(recs, p)
		}
	}

	divergent = findDivergent(recs)

	// Rank by supporting-agent count, ties by the best (lowest) priority
	// rank among supporters, then alphabetically for stability.
	sort.SliceStable(recs, func(i, j int) bool {
		if len(recs[i].agents) != len(recs[j].agents) {
			return len(recs[i].agents) > len(recs[j].agents)
		}
		ri, rj := bestRank(recs[i].agents, ranks), bestRank(recs[j].agents, ranks)
		if ri != rj {
			return ri < rj
		}
		return recs[i].gist < recs[j].gist
	})
	for _, p := range recs {
		recommendations = append(recommendations, p.original)
	}
	return consensus, divergent, recommendations
}

// collectPoints splits each output into statements and merges statements
// whose normalized gist matches across agents.
func collectPoints(outputs map[string]string) []point {
	byGist := make(map[string]*point)
	var order []string

	agents := make([]string, 0, len(outputs))
	for agentID := range outputs {
		agents = append(agents, agentID)
	}
	sort.Strings(agents)

	for _, agentID := range agents {
		seen := make(map[string]struct{})
		for _, sentence := range splitStatements(outputs[agentID]) {
			gist := normalizeGist(sentence)
			if gist == "" {
				continue
			}
			if _, dup := seen[gist]; dup {
				continue
			}
			seen[gist] = struct{}{}

			p, ok := byGist[gist]
			if !ok {
				p = &point{gist: gist, original: sentence}
				byGist[gist] = p
				order = append(order, gist)
			}
			p.agents = append(p.agents, agentID)
		}
	}

	out := make([]point, 0, len(order))
	for _, gist := range order {
		out = append(out, *byGist[gist])
	}
	return out
}

// splitStatements breaks an output into sentences and bullet lines.
func splitStatements(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimLeft(line, " \t-*•")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, sentence := range strings.FieldsFunc(line, func(r rune) bool {
			return r == '.' || r == '!' || r == ';'
		}) {
			sentence = strings.TrimSpace(sentence)
			if sentence != "" {
				out = append(out, sentence)
			}
		}
	}
	return out
}

// normalizeGist lowercases a statement and strips punctuation so the same
// point phrased with different casing or trailing punctuation matches.
// Statements under three words carry no comparable content and are dropped.
func normalizeGist(sentence string) string {
	fields := strings.FieldsFunc(strings.ToLower(sentence), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) < 3 {
		return ""
	}
	return strings.Join(fields, " ")
}

func isRecommendation(gist string) bool {
	for _, m := range recommendationMarkers {
		if strings.Contains(gist, m) {
			return true
		}
	}
	return false
}

// findDivergent flags pairs of recommendations from disjoint agent sets
// that address the same subject with opposing stances.
func findDivergent(recs []point) []string {
	var out []string
	for i := 0; i < len(recs); i++ {
		for j := i + 1; j < len(recs); j++ {
			if sharedAgent(recs[i].agents, recs[j].agents) {
				continue
			}
			if !opposingStance(recs[i].gist, recs[j].gist) {
				continue
			}
			if subjectOverlap(recs[i].gist, recs[j].gist) < 0.4 {
				continue
			}
			out = append(out, recs[i].original+" <> "+recs[j].original)
		}
	}
	sort.Strings(out)
	return out
}

func sharedAgent(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func opposingStance(a, b string) bool {
	for _, pair := range stancePairs {
		if strings.Contains(a, pair[0]) && strings.Contains(b, pair[1]) {
			return true
		}
		if strings.Contains(a, pair[1]) && strings.Contains(b, pair[0]) {
			return true
		}
	}
	return false
}

// subjectOverlap measures how much two gists talk about the same thing,
// ignoring stance words themselves.
func subjectOverlap(a, b string) float64 {
	tokensA := subjectTokens(a)
	tokensB := subjectTokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(tokensA))
	for _, tok := range tokensA {
		setA[tok] = struct{}{}
	}
	inter := 0
	setB := make(map[string]struct{}, len(tokensB))
	for _, tok := range tokensB {
		if _, dup := setB[tok]; dup {
			continue
		}
		setB[tok] = struct{}{}
		if _, ok := setA[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func subjectTokens(gist string) []string {
	stance := make(map[string]struct{}, len(stancePairs)*2)
	for _, pair := range stancePairs {
		stance[pair[0]] = struct{}{}
		stance[pair[1]] = struct{}{}
	}
	var out []string
	for _, tok := range routing.ExtractKeywords(gist) {
		if _, ok := stance[tok]; ok {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func bestRank(agents []string, ranks map[string]int) int {
	best := int(^uint(0) >> 1)
	for _, a := range agents {
		if r, ok := ranks[a]; ok && r < best {
			best = r
		}
	}
	return best
}
