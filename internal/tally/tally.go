// Package tally computes per-issue vote summaries from raw vote rows.
package tally

// Vote is one raw vote row for an issue. Weight is never below 1 in
// stored data; Compute clamps anyway so a bad row cannot skew a summary
// below its raw count.
type Vote struct {
	DirectorName string
	VoteType     string
	Weight       int
}

// Summary aggregates all votes of one type on one issue.
type Summary struct {
	VoteType      string   `json:"vote_type"`
	Count         int      `json:"count"`
	WeightedCount int      `json:"weighted_count"`
	Directors     []string `json:"directors"`
}

// Compute rebuilds the full summary from raw rows. It is a pure
// recomputation, never an incremental patch: callers re-run it on every
// vote change for the issue. Vote types appear in first-seen row order
// and directors within a type keep submission order, so two runs over
// the same rows always yield identical output.
func Compute(votes []Vote) []Summary {
	order := make([]string, 0, 4)
	byType := make(map[string]*Summary, 4)

	for _, vote := range votes {
		summary, ok := byType[vote.VoteType]
		if !ok {
			summary = &Summary{VoteType: vote.VoteType, Directors: []string{}}
			byType[vote.VoteType] = summary
			order = append(order, vote.VoteType)
		}
		weight := vote.Weight
		if weight < 1 {
			weight = 1
		}
		summary.Count++
		summary.WeightedCount += weight
		summary.Directors = append(summary.Directors, vote.DirectorName)
	}

	out := make([]Summary, 0, len(order))
	for _, voteType := range order {
		out = append(out, *byType[voteType])
	}
	return out
}
