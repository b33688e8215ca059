// Package evaluation measures retrieval quality against a labelled query set.
package evaluation

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"docbuddy/src/core/knowledgebase"
)

// Case is one line of an evaluation set
type Case struct {
	Query         string   `json:"query"`
	Answer        string   `json:"answer,omitempty"`
	GoldenSources []string `json:"golden_sources"`
}

// Result scores the retrieval of a single case
type Result struct {
	Query    string  `json:"query"`
	Matched  int     `json:"matched"`
	Expected int     `json:"expected"`
	Score    float64 `json:"score"`
	// ReciprocalRank is 1/rank of the first relevant hit, 0 without one.
	ReciprocalRank float64 `json:"reciprocal_rank"`
}

type Report struct {
	Cases        int      `json:"cases"`
	AverageScore float64  `json:"average_score"`
	MRR          float64  `json:"mrr"`
	Results      []Result `json:"results"`
}

const maxLineBytes = 1 << 20

// Evaluate reads JSON lines from set, searches the store for every query and
// scores the hits by the share of golden sources they cover.
func Evaluate(ctx context.Context, set io.Reader, search knowledgebase.SearchService, storePath string, k int) (*Report, error) {
	scanner := bufio.NewScanner(set)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	report := &Report{}
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var c Case
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", knowledgebase.ErrInvalidInput, line, err)
		}
		if len(c.GoldenSources) == 0 {
			return nil, fmt.Errorf("%w: line %d has no golden sources", knowledgebase.ErrInvalidInput, line)
		}

		hits, err := search.Search(ctx, storePath, c.Query, k)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		res := score(c, hits)
		report.Results = append(report.Results, res)
		report.AverageScore += res.Score
		report.MRR += res.ReciprocalRank
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read evaluation set: %w", err)
	}

	report.Cases = len(report.Results)
	if report.Cases > 0 {
		report.AverageScore /= float64(report.Cases)
		report.MRR /= float64(report.Cases)
	}
	return report, nil
}

func score(c Case, hits []knowledgebase.ScoredChunk) Result {
	golden := make(map[string]bool, len(c.GoldenSources))
	for _, s := range c.GoldenSources {
		golden[s] = true
	}

	res := Result{Query: c.Query, Expected: len(golden)}
	seen := make(map[string]bool)
	for rank, h := range hits {
		src := h.Source()
		if !golden[src] {
			continue
		}
		if res.ReciprocalRank == 0 {
			res.ReciprocalRank = 1 / float64(rank+1)
		}
		if !seen[src] {
			seen[src] = true
			res.Matched++
		}
	}
	res.Score = float64(res.Matched) / float64(res.Expected)
	return res
}
