package model

import "time"

// Claim variants for compression experiments. Persona and position runs use VariantFull.
const (
	VariantFull       = "full"
	VariantTruncated  = "truncated"
	VariantCompressed = "compressed"
)

// ExperimentClaim is one atomic assertion extracted from a run's generated text.
type ExperimentClaim struct {
	ID             string     `json:"id"`
	RunID          string     `json:"run_id"`
	Text           string     `json:"text"`
	Supported      bool       `json:"supported"`
	Persona        Persona    `json:"persona"`
	Variant        string     `json:"variant"`
	ClaimType      string     `json:"claim_type,omitempty"`
	Confidence     float64    `json:"confidence"`
	ReferencedDate *time.Time `json:"referenced_date,omitempty"`
	Ordinal        int        `json:"ordinal"`
}

// ClaimReceipt links a claim to the journal entry that supports it.
type ClaimReceipt struct {
	ID         string    `json:"id"`
	ClaimID    string    `json:"claim_id"`
	EntryID    string    `json:"entry_id"`
	Field      string    `json:"field"`
	Snippet    string    `json:"snippet"`
	EntryDate  time.Time `json:"entry_date"`
	Confidence float64   `json:"confidence"`
}

// ClaimWithReceipts pairs a claim with its receipts, primary receipt first.
type ClaimWithReceipts struct {
	Claim    ExperimentClaim `json:"claim"`
	Receipts []ClaimReceipt  `json:"receipts"`
}

// PositionTest is the outcome of one needle-retrieval probe.
type PositionTest struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	Position   NeedlePosition `json:"position"`
	NeedleFact string         `json:"needle_fact"`
	Found      bool           `json:"found"`
	Confidence float64        `json:"confidence"`
	Snippet    string         `json:"snippet"`
}
