// Package tally aggregates vote records into per-candidate counts and
// resolves the outcome.
package tally

import (
	"fmt"
	"sort"
	"strings"

	"blind-voting/models"
	"blind-voting/registry"
)

// Result is the count of one candidate.
type Result struct {
	Code  uint32 `json:"code"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Count resolves every record's ballot through the candidate registry.
// Every registered candidate is present, with zero if it got no votes.
// Records whose ballot does not resolve are ignored.
func Count(records []models.VoteRecord, candidates *registry.Candidates) map[uint32]Result {
	counts := make(map[uint32]Result, candidates.Len())
	for _, c := range candidates.List() {
		counts[c.Code] = Result{Code: c.Code, Name: c.Name}
	}
	for _, record := range records {
		code, ok := record.BallotCode()
		if !ok {
			continue
		}
		r, ok := counts[code]
		if !ok {
			continue
		}
		r.Count++
		counts[code] = r
	}
	return counts
}

// Winners returns the candidates with the highest count, ordered by code.
// More than one winner is a tie. If every count is zero there is no
// winner and the result is empty.
func Winners(counts map[uint32]Result) []Result {
	top := 0
	for _, r := range counts {
		if r.Count > top {
			top = r.Count
		}
	}
	if top == 0 {
		return nil
	}
	var winners []Result
	for _, r := range counts {
		if r.Count == top {
			winners = append(winners, r)
		}
	}
	sortByCode(winners)
	return winners
}

// Conserved reports whether the counts add up to the number of records
// whose ballot resolves in the registry.
func Conserved(records []models.VoteRecord, candidates *registry.Candidates, counts map[uint32]Result) bool {
	resolvable := 0
	for _, record := range records {
		if code, ok := record.BallotCode(); ok {
			if _, ok := candidates.Name(code); ok {
				resolvable++
			}
		}
	}
	sum := 0
	for _, r := range counts {
		sum += r.Count
	}
	return sum == resolvable
}

// Summary is the exit poll of an election.
type Summary struct {
	TotalVotes   int      `json:"total_votes"`
	CountedVotes int      `json:"counted_votes"`
	IgnoredVotes int      `json:"ignored_votes"`
	Results      []Result `json:"results"`
	Winners      []Result `json:"winners"`
	Tie          bool     `json:"tie"`
	Outcome      string   `json:"outcome"`
}

func Summarize(records []models.VoteRecord, candidates *registry.Candidates) Summary {
	counts := Count(records, candidates)
	results := make([]Result, 0, len(counts))
	counted := 0
	for _, r := range counts {
		results = append(results, r)
		counted += r.Count
	}
	sortByCode(results)

	winners := Winners(counts)
	return Summary{
		TotalVotes:   len(records),
		CountedVotes: counted,
		IgnoredVotes: len(records) - counted,
		Results:      results,
		Winners:      winners,
		Tie:          len(winners) > 1,
		Outcome:      outcome(winners),
	}
}

func outcome(winners []Result) string {
	switch len(winners) {
	case 0:
		return "No winner: all candidates received 0 votes"
	case 1:
		return fmt.Sprintf("%s wins with %d votes", winners[0].Name, winners[0].Count)
	}
	names := make([]string, len(winners))
	for i, w := range winners {
		names[i] = w.Name
	}
	return fmt.Sprintf("Tie between %s with %d votes each", strings.Join(names, ", "), winners[0].Count)
}

func sortByCode(results []Result) {
	sort.Slice(results, func(i, j int) bool { return results[i].Code < results[j].Code })
}
