package evidence

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// token is one word of an analysed text. Offsets are rune indices into the
// analysed text's runes.
type token struct {
	word  string // case-folded surface form
	stem  string
	start int
	end   int
	upper bool // first rune was upper case in the source
	num   bool
}

// analysed is a text prepared for overlap matching.
type analysed struct {
	runes  []rune // NFKC-normalised, original case
	tokens []token
}

func analyse(s string) analysed {
	runes := []rune(norm.NFKC.String(s))
	a := analysed{runes: runes}

	i := 0
	for i < len(runes) {
		if !isWordRune(runes[i]) {
			i++
			continue
		}
		start := i
		for i < len(runes) && (isWordRune(runes[i]) || isInnerApostrophe(runes, i)) {
			i++
		}
		word := strings.ToLower(string(runes[start:i]))
		word = strings.NewReplacer("’", "'", "‘", "'").Replace(word)
		a.tokens = append(a.tokens, token{
			word:  word,
			stem:  stem(word),
			start: start,
			end:   i,
			upper: unicode.IsUpper(runes[start]),
			num:   isNumber(word),
		})
	}
	return a
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// isInnerApostrophe keeps contractions like "didn't" in a single token.
func isInnerApostrophe(runes []rune, i int) bool {
	if runes[i] != '\'' && runes[i] != '’' {
		return false
	}
	return i > 0 && i+1 < len(runes) && unicode.IsLetter(runes[i-1]) && unicode.IsLetter(runes[i+1])
}

func isNumber(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return w != ""
}

// stem strips a handful of English inflections so "races", "racing" and
// "raced" collapse together. It is deliberately light.
func stem(w string) string {
	w = strings.TrimSuffix(w, "'s")
	if len(w) <= 4 || isNumber(w) {
		return w
	}
	for _, suffix := range []string{"ing", "edly", "ed", "ies", "es", "ly", "s"} {
		if strings.HasSuffix(w, suffix) && len(w)-len(suffix) >= 4 {
			base := strings.TrimSuffix(w, suffix)
			if suffix == "ies" {
				base += "y"
			}
			return base
		}
	}
	return w
}

func (a analysed) words() []string {
	out := make([]string, len(a.tokens))
	for i, t := range a.tokens {
		out[i] = t.word
	}
	return out
}

func (a analysed) stems() []string {
	out := make([]string, len(a.tokens))
	for i, t := range a.tokens {
		out[i] = t.stem
	}
	return out
}

// keywords returns the distinctive stems of a text mapped to the index of
// their first occurrence.
func (a analysed) keywords(minLen int) map[string]int {
	kw := make(map[string]int)
	for i, t := range a.tokens {
		if !isDistinctive(t, minLen) {
			continue
		}
		if _, ok := kw[t.stem]; !ok {
			kw[t.stem] = i
		}
	}
	return kw
}

func isDistinctive(t token, minLen int) bool {
	if t.num {
		return true
	}
	if stopwords[t.word] || voiceWords[t.word] {
		return false
	}
	return len([]rune(t.word)) >= minLen
}

// snippet returns up to width runes of text centred on the rune offset
// center, widened to word boundaries and marked with ellipses when cut.
func snippet(runes []rune, center, width int) string {
	if len(runes) == 0 || width <= 0 {
		return ""
	}
	if len(runes) <= width {
		return strings.TrimSpace(string(runes))
	}
	center = min(max(center, 0), len(runes)-1)
	start := max(center-width/2, 0)
	end := min(start+width, len(runes))
	start = max(end-width, 0)

	for start > 0 && !unicode.IsSpace(runes[start-1]) && center-start < width*3/4 {
		start--
	}
	for end < len(runes) && !unicode.IsSpace(runes[end]) && end-center < width*3/4 {
		end++
	}

	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}

// indexOf returns the first index at which needle occurs in hay as a
// contiguous word sequence, or -1.
func indexOf(hay, needle []string) int {
	if len(needle) == 0 || len(needle) > len(hay) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(hay); i++ {
		for j := range needle {
			if hay[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// longestRun returns the length of the longest common contiguous sequence of
// a and b and its starting index in b.
func longestRun(a, b []string) (length, bStart int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, -1
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	bStart = -1
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > length {
					length = cur[j]
					bStart = j - cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return length, bStart
}

var stopwords = toSet(`a about above after again against all also am an and any are aren't as at be because been
before being below between both but by can can't could couldn't did didn't do does doesn't doing don't down during
each few for from further had hadn't has hasn't have haven't having he he'd he'll he's her here here's hers herself
him himself his how how's i i'd i'll i'm i've if in into is isn't it it's its itself just let's me more most mustn't
my myself no nor not now of off on once only or other ought our ours ourselves out over own really same shan't she
she'd she'll she's should shouldn't so some such than that that's the their theirs them themselves then there there's
these they they'd they'll they're they've this those through to too under until up very was wasn't we we'd we'll
we're we've were weren't what what's when when's where where's which while who who's whom why why's will with won't
would wouldn't you you'd you'll you're you've your yours yourself yourselves athlete athlete's athletes seem seems
seemed felt feel feels feeling like thing things something quite still even much many lot lots get got getting
overall entry entries journal noted mentioned wrote week day time`)

// voiceWords carry persona tone rather than facts.
var voiceWords = toSet(`keep proud believe champion crush crushing awesome amazing incredible fantastic wonderful
remember together journey grind beast warrior push pushing unstoppable greatness legend fire hungry excuses mindset
absolutely totally definitely great job`)

// encouragements are generic persona-voice phrases with no factual content.
var encouragements = []string{
	"keep it up", "keep going", "keep pushing", "you've got this", "you got this", "proud of you",
	"believe in yourself", "great job", "well done", "let's go", "no excuses", "stay strong",
	"you can do it", "trust the process", "keep working", "one step at a time", "be kind to yourself",
	"i'm here for you", "you are not alone", "you're not alone",
}

func toSet(words string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(words) {
		set[w] = true
	}
	return set
}
