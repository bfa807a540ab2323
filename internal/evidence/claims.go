package evidence

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/journal-harness/internal/model"
)

// Receipt is evidence linking a claim to one journal entry field.
type Receipt struct {
	EntryID    string
	Field      string
	Snippet    string
	EntryDate  time.Time
	Confidence float64
}

// ExtractedClaim is one candidate claim and its grounding. Receipts are
// ordered strongest first, so Receipts[0] is the primary receipt.
type ExtractedClaim struct {
	Text           string
	Supported      bool
	Confidence     float64
	ClaimType      string
	ReferencedDate *time.Time
	Receipts       []Receipt
}

// ExtractClaims segments generated text into factual claims and grounds each
// against the free-text fields of entries. It never fails: empty or
// unparsable text yields an empty, non-nil slice.
func ExtractClaims(text string, entries []model.JournalEntry) []ExtractedClaim {
	claims := make([]ExtractedClaim, 0)
	sentences := Segment(text)
	if len(sentences) == 0 {
		return claims
	}

	sources := prepareSources(entries)
	anchor := latestEntryDate(entries)

	for _, s := range sentences {
		c := ExtractedClaim{Text: s}
		c.Receipts = ground(analyse(s), sources)
		if len(c.Receipts) > 0 {
			primary := c.Receipts[0]
			c.Supported = true
			c.Confidence = primary.Confidence
			c.ClaimType = claimTypes[primary.Field]
		}
		c.ReferencedDate = ReferencedDate(s, anchor)
		claims = append(claims, c)
	}
	return claims
}

type sourceField struct {
	entry model.JournalEntry
	field string
	text  analysed
}

func prepareSources(entries []model.JournalEntry) [][]sourceField {
	out := make([][]sourceField, 0, len(entries))
	for _, e := range entries {
		fields := e.Fields()
		prepared := make([]sourceField, 0, len(fields))
		for _, f := range fields {
			prepared = append(prepared, sourceField{entry: e, field: f.Name, text: analyse(f.Text)})
		}
		out = append(out, prepared)
	}
	return out
}

// ground returns receipts for a claim: the best-scoring field of every entry
// at or above SupportThreshold, strongest first with ties broken by the most
// recent entry date.
func ground(claim analysed, sources [][]sourceField) []Receipt {
	var receipts []Receipt
	for _, fields := range sources {
		var best match
		var bestField *sourceField
		for i := range fields {
			m := score(claim, fields[i].text)
			if m.confidence > best.confidence {
				best, bestField = m, &fields[i]
			}
		}
		if bestField == nil || best.confidence < SupportThreshold {
			continue
		}
		receipts = append(receipts, Receipt{
			EntryID:    bestField.entry.ID,
			Field:      bestField.field,
			Snippet:    snippet(bestField.text.runes, best.anchor, ReceiptSnippetLength),
			EntryDate:  bestField.entry.EntryDate,
			Confidence: best.confidence,
		})
	}

	sort.SliceStable(receipts, func(i, j int) bool {
		a, b := receipts[i], receipts[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if !a.EntryDate.Equal(b.EntryDate) {
			return a.EntryDate.After(b.EntryDate)
		}
		return a.EntryID < b.EntryID
	})
	if len(receipts) > MaxReceipts {
		receipts = receipts[:MaxReceipts]
	}
	return receipts
}

func latestEntryDate(entries []model.JournalEntry) time.Time {
	var latest time.Time
	for _, e := range entries {
		if e.EntryDate.After(latest) {
			latest = e.EntryDate
		}
	}
	return latest
}

var (
	listMarker = regexp.MustCompile(`^\s*(?:[-*•+]|\d{1,2}[.)])\s+`)
	heading    = regexp.MustCompile(`^\s*#{1,6}\s*`)
	emphasis   = strings.NewReplacer("**", "", "__", "", "`", "")
)

// abbreviations that end in a period without ending a sentence.
var abbreviations = toSet(`mr mrs ms dr st vs etc approx min km mi hr hrs e.g i.e jan feb mar apr jun jul aug sep sept oct nov dec`)

// Segment splits generated text into candidate claim sentences, dropping
// questions, headings and persona-voice sentences that carry no facts.
func Segment(text string) []string {
	text = norm.NFKC.String(text)
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = heading.ReplaceAllString(line, "")
		line = listMarker.ReplaceAllString(line, "")
		line = strings.TrimSpace(emphasis.Replace(line))
		if line == "" {
			continue
		}
		for _, s := range splitSentences(line) {
			if isFactual(s) {
				out = append(out, s)
			}
		}
	}
	return out
}

func splitSentences(line string) []string {
	runes := []rune(line)
	var out []string
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) && !isClosingQuote(runes[i+1]) {
			continue
		}
		if r == '.' && endsWithAbbreviation(runes[start:i]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func isClosingQuote(r rune) bool {
	return r == '"' || r == '\'' || r == '”' || r == '’' || r == ')'
}

func endsWithAbbreviation(runes []rune) bool {
	i := len(runes)
	for i > 0 && (unicode.IsLetter(runes[i-1]) || runes[i-1] == '.') {
		i--
	}
	word := strings.ToLower(string(runes[i:]))
	return word != "" && abbreviations[word]
}

func isFactual(sentence string) bool {
	trimmed := strings.TrimRight(sentence, `"'”’) `)
	if strings.HasSuffix(trimmed, "?") || strings.HasSuffix(trimmed, ":") {
		return false
	}

	a := analyse(sentence)
	content := 0
	for _, t := range a.tokens {
		if t.num || (!stopwords[t.word] && !voiceWords[t.word] && len([]rune(t.word)) >= 3) {
			content++
		}
	}
	if content < MinClaimContentTokens {
		return false
	}

	lower := strings.ToLower(strings.NewReplacer("’", "'").Replace(sentence))
	for _, phrase := range encouragements {
		if strings.Contains(lower, phrase) && content < 3 {
			return false
		}
	}
	return true
}
