package evidence

import "github.com/sells-group/journal-harness/internal/model"

// PositionOutcome is the result of searching a response for a needle fact.
type PositionOutcome struct {
	Position   model.NeedlePosition
	Found      bool
	Confidence float64
	// Snippet is the response text centred on the strongest match, empty
	// when the needle was not found.
	Snippet string
}

// Evaluate decides whether response retrieved needleFact. A verbatim
// occurrence scores ExactConfidence. Otherwise salient needle tokens are
// searched for, with numbers and proper nouns weighted double, and a long
// shared run is scored like a near-exact claim match.
func Evaluate(position model.NeedlePosition, needleFact, response string) PositionOutcome {
	out := PositionOutcome{Position: position}
	needle := analyse(needleFact)
	resp := analyse(response)
	if len(needle.tokens) == 0 || len(resp.tokens) == 0 {
		return out
	}

	nWords, rWords := needle.words(), resp.words()
	if i := indexOf(rWords, nWords); i >= 0 {
		out.Confidence = ExactConfidence
		out.Found = true
		out.Snippet = snippet(resp.runes, centre(resp, i, i+len(nWords)), PositionSnippetLength)
		return out
	}

	best := match{}
	if run, start := longestRun(needle.stems(), resp.stems()); run >= 3 {
		ratio := float64(run) / float64(len(nWords))
		best = match{
			tier:       tierNearExact,
			confidence: NearExactBase + NearExactSpan*min(ratio, 0.99),
			anchor:     centre(resp, start, start+run),
		}
	}

	if kw := salientMatch(needle, resp); kw.confidence > best.confidence {
		best = kw
	}

	out.Confidence = best.confidence
	out.Found = best.confidence >= PositionFoundThreshold
	if out.Found {
		out.Snippet = snippet(resp.runes, best.anchor, PositionSnippetLength)
	}
	return out
}

// salientMatch scores weighted coverage of the needle's salient tokens.
// Hyphenated compounds such as "sub-4" only count when the response carries
// both halves side by side. Coverage without a shared bigram is capped below
// PositionFoundThreshold, so scattered keywords alone never find a needle.
func salientMatch(needle, resp analysed) match {
	present := make(map[string][]int)
	for i, t := range resp.tokens {
		present[t.stem] = append(present[t.stem], i)
	}
	compound := compoundHits(needle, resp)

	seen := make(map[string]bool)
	var total, hit float64
	var hits []int
	for i, t := range needle.tokens {
		if seen[t.stem] || !isSalient(t) {
			continue
		}
		seen[t.stem] = true
		w := 1.0
		if t.num || t.upper {
			w = 2
		}
		total += w
		if idx, ok := compound[i]; ok {
			if len(idx) > 0 {
				hit += w
				hits = append(hits, idx...)
			}
			continue
		}
		if idx, ok := present[t.stem]; ok {
			hit += w
			hits = append(hits, idx...)
		}
	}
	if total == 0 || len(hits) == 0 {
		return match{}
	}
	conf := PositionKeywordWeight * hit / total
	if !sharesBigram(needle, resp) {
		conf = min(conf, PositionUnanchoredCap)
	}
	return match{
		tier:       tierKeyword,
		confidence: conf,
		anchor:     densest(resp, hits),
	}
}

// compoundHits maps the index of every needle token that belongs to a
// hyphenated compound to the response tokens where the whole compound
// appears. An empty slice means the compound is missing.
func compoundHits(needle, resp analysed) map[int][]int {
	out := make(map[int][]int)
	for i := 0; i+1 < len(needle.tokens); i++ {
		a, b := needle.tokens[i], needle.tokens[i+1]
		if !hyphenated(needle.runes, a, b) {
			continue
		}
		var at []int
		for j := 0; j+1 < len(resp.tokens); j++ {
			if resp.tokens[j].stem == a.stem && resp.tokens[j+1].stem == b.stem &&
				resp.tokens[j+1].start-resp.tokens[j].end <= 1 {
				at = append(at, j, j+1)
			}
		}
		for _, k := range []int{i, i + 1} {
			if _, ok := out[k]; !ok {
				out[k] = []int{}
			}
			out[k] = append(out[k], at...)
		}
	}
	return out
}

func hyphenated(runes []rune, a, b token) bool {
	if b.start-a.end != 1 {
		return false
	}
	switch runes[a.end] {
	case '-', '‐', '‑', '–':
		return true
	}
	return false
}

// sharesBigram reports whether two adjacent needle tokens, at least one of
// them salient, appear adjacent and in order in the response.
func sharesBigram(needle, resp analysed) bool {
	pairs := make(map[[2]string]bool)
	for i := 0; i+1 < len(needle.tokens); i++ {
		a, b := needle.tokens[i], needle.tokens[i+1]
		if isSalient(a) || isSalient(b) {
			pairs[[2]string{a.stem, b.stem}] = true
		}
	}
	for j := 0; j+1 < len(resp.tokens); j++ {
		if pairs[[2]string{resp.tokens[j].stem, resp.tokens[j+1].stem}] {
			return true
		}
	}
	return false
}

// isSalient is looser than claim keyword selection because needle facts are
// short: any non-stopword of three or more runes counts.
func isSalient(t token) bool {
	return isDistinctive(t, 3)
}
