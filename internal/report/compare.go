package report

import (
	"fmt"

	"github.com/sells-group/journal-harness/internal/model"
)

// Compare aggregates batch members. Cost, duration and token figures cover
// completed members only; failed members are listed with their errors.
// Members sharing a provider:model label are told apart by a "#n" suffix.
func Compare(batchID string, members []Member) model.BatchComparison {
	cmp := model.BatchComparison{
		BatchID:            batchID,
		CostByProvider:     make(map[string]float64),
		DurationByProvider: make(map[string]int64),
		TokensByProvider:   make(map[string]int),
	}

	statuses := make([]model.ExperimentStatus, 0, len(members))
	var cheapest, fastest string
	seen := make(map[string]int)

	for _, m := range members {
		run := m.Run
		statuses = append(statuses, run.Status)

		label := run.Label()
		seen[label]++
		if n := seen[label]; n > 1 {
			label = fmt.Sprintf("%s#%d", label, n)
		}

		switch run.Status {
		case model.StatusFailed:
			cmp.Failed = append(cmp.Failed, model.FailedProvider{Label: label, RunID: run.ID, Error: run.Error})
			continue
		case model.StatusCompleted:
		default:
			continue
		}

		cmp.CostByProvider[label] = run.EstimatedCost
		cmp.TokensByProvider[label] = run.TokensUsed
		ms := run.Duration().Milliseconds()
		cmp.DurationByProvider[label] = ms

		if cheapest == "" || run.EstimatedCost < cmp.CostByProvider[cheapest] {
			cheapest = label
		}
		if fastest == "" || ms < cmp.DurationByProvider[fastest] {
			fastest = label
		}

		if run.Type == model.ExperimentPosition {
			if cmp.PositionMatrix == nil {
				cmp.PositionMatrix = make(map[string]map[model.NeedlePosition]bool)
			}
			row := make(map[model.NeedlePosition]bool, len(m.PositionTests))
			for _, pt := range m.PositionTests {
				row[pt.Position] = pt.Found
			}
			cmp.PositionMatrix[label] = row
		} else {
			if cmp.SupportedRatio == nil {
				cmp.SupportedRatio = make(map[string]float64)
			}
			cmp.SupportedRatio[label] = SupportedRatio(m.Claims)
		}
	}

	cmp.Status = model.ComputeBatchStatus(statuses)
	cmp.CheapestProvider = cheapest
	cmp.FastestProvider = fastest
	return cmp
}

// SupportedRatio is the share of claims with at least one receipt, 0 when
// there are no claims.
func SupportedRatio(claims []model.ClaimWithReceipts) float64 {
	if len(claims) == 0 {
		return 0
	}
	n := 0
	for _, c := range claims {
		if c.Claim.Supported {
			n++
		}
	}
	return float64(n) / float64(len(claims))
}
