// Package evidence grounds generated text against journal entries. It holds
// the claim extractor and the needle position evaluator, which share one
// layered overlap scorer. Everything here is pure: no I/O, no clock reads.
package evidence

// Calibration parameters. The tiers are ordered so that a verbatim match
// always outranks a near-exact one, which in turn outranks keyword overlap.
const (
	// ExactConfidence is awarded when the claim's word sequence appears
	// verbatim (after normalisation) inside an entry field.
	ExactConfidence = 1.0

	// NearExactBase and NearExactSpan score a long shared word run:
	// NearExactBase + NearExactSpan*ratio, where ratio is the run length
	// divided by the claim length. Always in [0.7, 0.95).
	NearExactBase = 0.7
	NearExactSpan = 0.25
	// NearExactMinRun is the shortest shared run counted as near-exact.
	NearExactMinRun = 4
	// NearExactMinRatio is the minimum share of the claim the run must cover.
	NearExactMinRatio = 0.5

	// KeywordBase and KeywordSpan score distinctive keyword overlap:
	// KeywordBase + KeywordSpan*coverage, capped at KeywordCap.
	KeywordBase = 0.3
	KeywordSpan = 0.4
	KeywordCap  = 0.7
	// KeywordMinLen is the minimum rune length of a distinctive keyword.
	// Numbers are always distinctive.
	KeywordMinLen = 4
	// KeywordMinShared is the minimum number of shared keywords.
	KeywordMinShared = 2
	// KeywordMinCoverage is the minimum share of claim keywords found.
	KeywordMinCoverage = 0.34

	// SupportThreshold is the confidence at or above which a claim is
	// considered supported and receives receipts.
	SupportThreshold = 0.4
	// MaxReceipts caps receipts per claim, strongest first.
	MaxReceipts = 3
	// ReceiptSnippetLength is the display width of receipt snippets.
	ReceiptSnippetLength = 200

	// MinClaimContentTokens drops candidate sentences with too little
	// factual content to verify.
	MinClaimContentTokens = 2

	// PositionFoundThreshold is the confidence at which a needle counts as
	// retrieved.
	PositionFoundThreshold = 0.6
	// PositionKeywordWeight scales weighted needle-token coverage.
	PositionKeywordWeight = 0.8
	// PositionUnanchoredCap bounds keyword coverage when no needle bigram
	// appears in the response.
	PositionUnanchoredCap = 0.5
	// PositionSnippetLength is the display width of position snippets.
	PositionSnippetLength = 160
)

// claimTypes maps the matched entry field to a claim type tag.
var claimTypes = map[string]string{
	"emotional_state":    "emotional-state",
	"session_reflection": "event",
	"mental_barriers":    "barrier",
}
