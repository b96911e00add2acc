package loader

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ScoreTable maps a preference rank to its satisfaction score.
type ScoreTable []float64

// DefaultScoreTable is the happiness table used for workshop instances.
func DefaultScoreTable() ScoreTable {
	return ScoreTable{100, 90, 85, 80, 75, 70, 60, 50, 40, 30}
}

// ParseScoreTable reads a comma separated list of scores. An empty string
// yields the default table.
func ParseScoreTable(raw string) (ScoreTable, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultScoreTable(), nil
	}
	parts := strings.Split(raw, ",")
	table := make(ScoreTable, 0, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("score table entry %d: invalid score %q", i, part)
		}
		table = append(table, v)
	}
	return table, nil
}

// Score returns the score for rank.
func (t ScoreTable) Score(rank int) (float64, bool) {
	if rank < 0 || rank >= len(t) {
		return 0, false
	}
	return t[rank], true
}

func (t ScoreTable) String() string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
