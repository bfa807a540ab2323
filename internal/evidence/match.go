package evidence

// tier ranks the strength of a match.
type tier int

const (
	tierNone tier = iota
	tierKeyword
	tierNearExact
	tierExact
)

// match is the best overlap of a query inside one target text.
type match struct {
	tier       tier
	confidence float64
	anchor     int // rune offset in the target around which to cut a snippet
}

// score runs the layered overlap strategy for query against target.
func score(query, target analysed) match {
	qWords := query.words()
	tWords := target.words()
	if len(qWords) == 0 || len(tWords) == 0 {
		return match{}
	}

	if i := indexOf(tWords, qWords); i >= 0 && len(qWords) >= MinClaimContentTokens {
		return match{tier: tierExact, confidence: ExactConfidence, anchor: centre(target, i, i+len(qWords))}
	}

	best := match{}
	if run, start := longestRun(query.stems(), target.stems()); run >= NearExactMinRun {
		ratio := float64(run) / float64(len(qWords))
		if ratio >= NearExactMinRatio {
			best = match{
				tier:       tierNearExact,
				confidence: NearExactBase + NearExactSpan*min(ratio, 0.99),
				anchor:     centre(target, start, start+run),
			}
		}
	}
	if best.tier != tierNone {
		return best
	}

	qk := query.keywords(KeywordMinLen)
	if len(qk) == 0 {
		return match{}
	}
	tk := target.keywords(KeywordMinLen)
	var hits []int
	for stem := range qk {
		if idx, ok := tk[stem]; ok {
			hits = append(hits, idx)
		}
	}
	coverage := float64(len(hits)) / float64(len(qk))
	if len(hits) < KeywordMinShared || coverage < KeywordMinCoverage {
		return match{}
	}
	return match{
		tier:       tierKeyword,
		confidence: min(KeywordBase+KeywordSpan*coverage, KeywordCap),
		anchor:     densest(target, hits),
	}
}

// centre returns the rune offset in the middle of tokens [from, to).
func centre(a analysed, from, to int) int {
	if from < 0 || from >= len(a.tokens) {
		return 0
	}
	to = min(max(to, from+1), len(a.tokens))
	return (a.tokens[from].start + a.tokens[to-1].end) / 2
}

// densest returns the rune offset of the hit token with the most other hits
// within a snippet-sized window, which is where the match is strongest.
func densest(a analysed, tokenIdx []int) int {
	if len(tokenIdx) == 0 {
		return 0
	}
	const window = 80
	bestOffset, bestCount := a.tokens[tokenIdx[0]].start, -1
	for _, i := range tokenIdx {
		off := a.tokens[i].start
		count := 0
		for _, j := range tokenIdx {
			if d := a.tokens[j].start - off; d >= -window && d <= window {
				count++
			}
		}
		if count > bestCount || (count == bestCount && off < bestOffset) {
			bestOffset, bestCount = off, count
		}
	}
	return bestOffset
}
