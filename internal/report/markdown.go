package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/journal-harness/internal/model"
)

var title = cases.Title(language.English)

// RunMarkdown renders one run. A run that has not finished is flagged as
// incomplete and whatever it has persisted so far is shown.
func RunMarkdown(m Member) string {
	var b strings.Builder
	run := m.Run

	fmt.Fprintf(&b, "# Experiment run %s\n\n", run.ID)
	writeStatusNote(&b, run)
	writeRunTable(&b, run)

	if run.Type == model.ExperimentPosition {
		writePositionTests(&b, m.PositionTests)
	} else {
		writeClaims(&b, m.Claims, "##")
	}
	return b.String()
}

// BatchMarkdown renders a batch: the comparison table, the position matrix
// for position experiments, failed providers and each completed provider's
// results.
func BatchMarkdown(batch Batch) string {
	var b strings.Builder
	cmp := batch.Comparison

	fmt.Fprintf(&b, "# Batch %s\n\n", batch.ID)
	fmt.Fprintf(&b, "**Status:** %s\n\n", batch.Status)
	if batch.Status == model.BatchRunning {
		b.WriteString("> **Incomplete:** some providers are still running; figures below cover finished runs only.\n\n")
	}

	b.WriteString("## Comparison\n\n")
	b.WriteString("| Provider | Status | Tokens | Cost (USD) | Duration | Supported |\n")
	b.WriteString("|---|---|---:|---:|---:|---:|\n")
	for _, m := range batch.Members {
		run := m.Run
		supported := "-"
		if run.Status == model.StatusCompleted && run.Type != model.ExperimentPosition {
			supported = fmt.Sprintf("%.0f%%", SupportedRatio(m.Claims)*100)
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %s | %s | %s |\n",
			run.Label(), run.Status, run.TokensUsed, formatCost(run.EstimatedCost), formatDuration(run), supported)
	}
	b.WriteString("\n")
	if cmp.CheapestProvider != "" {
		fmt.Fprintf(&b, "- Cheapest: **%s**\n", cmp.CheapestProvider)
	}
	if cmp.FastestProvider != "" {
		fmt.Fprintf(&b, "- Fastest: **%s**\n", cmp.FastestProvider)
	}
	if cmp.CheapestProvider != "" || cmp.FastestProvider != "" {
		b.WriteString("\n")
	}

	if len(cmp.PositionMatrix) > 0 {
		b.WriteString("## Position matrix\n\n")
		b.WriteString("| Provider | Start | Middle | End |\n|---|:-:|:-:|:-:|\n")
		for _, label := range sortedKeys(cmp.PositionMatrix) {
			row := cmp.PositionMatrix[label]
			fmt.Fprintf(&b, "| %s", label)
			for _, pos := range model.NeedlePositions {
				found, ok := row[pos]
				switch {
				case !ok:
					b.WriteString(" | -")
				case found:
					b.WriteString(" | found")
				default:
					b.WriteString(" | missed")
				}
			}
			b.WriteString(" |\n")
		}
		b.WriteString("\n")
	}

	if len(cmp.Failed) > 0 {
		b.WriteString("## Failed providers\n\n")
		for _, f := range cmp.Failed {
			fmt.Fprintf(&b, "- **%s** (`%s`): %s\n", f.Label, f.RunID, orDash(f.Error))
		}
		b.WriteString("\n")
	}

	for _, m := range batch.Members {
		if m.Run.Status != model.StatusCompleted {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", m.Run.Label())
		if m.Run.Type == model.ExperimentPosition {
			writePositionRows(&b, m.PositionTests)
		} else {
			writeClaims(&b, m.Claims, "###")
		}
	}
	return b.String()
}

func writeStatusNote(b *strings.Builder, run model.ExperimentRun) {
	switch run.Status {
	case model.StatusPending, model.StatusRunning:
		fmt.Fprintf(b, "> **Incomplete:** this run is %s; results below are partial.\n\n", run.Status)
	case model.StatusFailed:
		fmt.Fprintf(b, "> **Failed:** %s\n\n", orDash(run.Error))
	}
}

func writeRunTable(b *strings.Builder, run model.ExperimentRun) {
	rows := [][2]string{
		{"Provider", run.Label()},
		{"Experiment", string(run.Type)},
		{"Persona", string(run.Persona)},
		{"Temperature", fmt.Sprintf("%.2f", run.Temperature)},
		{"Prompt version", run.PromptVersion},
		{"Athlete", run.AthleteID},
		{"Entries used", fmt.Sprintf("%d (%s)", run.EntriesUsed, run.EntryOrder)},
		{"Status", string(run.Status)},
		{"Tokens", fmt.Sprintf("%d in / %d out / %d total", run.InputTokens, run.OutputTokens, run.TokensUsed)},
		{"Estimated cost", formatCost(run.EstimatedCost)},
		{"Duration", formatDuration(run)},
	}
	if run.BatchID != "" {
		rows = append(rows, [2]string{"Batch", run.BatchID})
	}
	if run.NeedleFact != "" {
		rows = append(rows, [2]string{"Needle fact", run.NeedleFact})
	}

	b.WriteString("| Field | Value |\n|---|---|\n")
	for _, r := range rows {
		fmt.Fprintf(b, "| %s | %s |\n", r[0], escapeCell(r[1]))
	}
	b.WriteString("\n")
}

// writeClaims groups claims by persona in order of first appearance, then by
// variant when a persona has more than one.
func writeClaims(b *strings.Builder, claims []model.ClaimWithReceipts, heading string) {
	fmt.Fprintf(b, "%s Claims\n\n", heading)
	if len(claims) == 0 {
		b.WriteString("_No claims extracted._\n\n")
		return
	}

	supported := 0
	for _, c := range claims {
		if c.Claim.Supported {
			supported++
		}
	}
	fmt.Fprintf(b, "%d of %d claims supported by the journal.\n\n", supported, len(claims))

	for _, g := range groupClaims(claims) {
		label := title.String(string(g.persona))
		if g.showVariant {
			label += " (" + g.variant + ")"
		}
		fmt.Fprintf(b, "%s# %s\n\n", heading, label)
		for _, c := range g.claims {
			writeClaim(b, c)
		}
		b.WriteString("\n")
	}
}

func writeClaim(b *strings.Builder, c model.ClaimWithReceipts) {
	mark := "unsupported"
	if c.Claim.Supported {
		mark = "supported"
	}
	fmt.Fprintf(b, "- %s _(%s, %.2f", c.Claim.Text, mark, c.Claim.Confidence)
	if c.Claim.ClaimType != "" {
		fmt.Fprintf(b, ", %s", c.Claim.ClaimType)
	}
	if c.Claim.ReferencedDate != nil {
		fmt.Fprintf(b, ", refers to %s", c.Claim.ReferencedDate.Format(time.DateOnly))
	}
	b.WriteString(")_\n")
	for _, r := range c.Receipts {
		fmt.Fprintf(b, "  - %s %s: \"%s\" (%.2f)\n", r.EntryDate.Format(time.DateOnly), r.Field, r.Snippet, r.Confidence)
	}
}

type claimGroup struct {
	persona     model.Persona
	variant     string
	showVariant bool
	claims      []model.ClaimWithReceipts
}

func groupClaims(claims []model.ClaimWithReceipts) []claimGroup {
	var groups []claimGroup
	idx := make(map[string]int)
	variants := make(map[model.Persona]map[string]bool)
	for _, c := range claims {
		key := string(c.Claim.Persona) + "\x00" + c.Claim.Variant
		i, ok := idx[key]
		if !ok {
			i = len(groups)
			idx[key] = i
			groups = append(groups, claimGroup{persona: c.Claim.Persona, variant: c.Claim.Variant})
		}
		groups[i].claims = append(groups[i].claims, c)
		if variants[c.Claim.Persona] == nil {
			variants[c.Claim.Persona] = make(map[string]bool)
		}
		variants[c.Claim.Persona][c.Claim.Variant] = true
	}
	for i := range groups {
		groups[i].showVariant = len(variants[groups[i].persona]) > 1
	}
	return groups
}

func writePositionTests(b *strings.Builder, tests []model.PositionTest) {
	b.WriteString("## Position test\n\n")
	writePositionRows(b, tests)
}

func writePositionRows(b *strings.Builder, tests []model.PositionTest) {
	if len(tests) == 0 {
		b.WriteString("_No position results yet._\n\n")
		return
	}
	b.WriteString("| Position | Found | Confidence | Snippet |\n|---|:-:|---:|---|\n")
	for _, pt := range tests {
		found := "no"
		if pt.Found {
			found = "yes"
		}
		fmt.Fprintf(b, "| %s | %s | %.2f | %s |\n", pt.Position, found, pt.Confidence, escapeCell(orDash(pt.Snippet)))
	}
	b.WriteString("\n")
}

func formatCost(c float64) string {
	return fmt.Sprintf("$%.4f", c)
}

func formatDuration(run model.ExperimentRun) string {
	if !run.Status.Terminal() || run.StartedAt == nil {
		return "-"
	}
	return run.Duration().Round(time.Millisecond).String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
