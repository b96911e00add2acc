package cbc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/milp"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
)

// Solution is the parsed content of a cbc solution file.
type Solution struct {
	Status    solver.Status
	Header    string
	Objective float64
	// Values holds the printed (non-zero) columns by name.
	Values map[string]float64
}

// ParseSolution reads the header line and the column lines of a cbc solution file.
func ParseSolution(r io.Reader) (*Solution, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read cbc solution: %w", err)
		}
		return nil, fmt.Errorf("empty cbc solution")
	}
	header := strings.TrimSpace(sc.Text())
	sol := &Solution{Header: header, Status: classify(header), Values: map[string]float64{}}
	if obj, ok := headerObjective(header); ok {
		sol.Objective = obj
	}

	for sc.Scan() {
		fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(sc.Text()), "**"))
		if len(fields) < 3 {
			continue
		}
		value, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("parse value of %s: %w", fields[1], err)
		}
		sol.Values[fields[1]] = value
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cbc solution: %w", err)
	}
	return sol, nil
}

func classify(header string) solver.Status {
	lower := strings.ToLower(header)
	switch {
	case strings.HasPrefix(lower, "optimal"):
		return solver.StatusOptimal
	case strings.Contains(lower, "no integer solution"):
		return solver.StatusEngineError
	case strings.HasPrefix(lower, "stopped"):
		return solver.StatusFeasible
	case strings.Contains(lower, "infeasible"):
		return solver.StatusInfeasible
	case strings.Contains(lower, "unbounded"):
		return solver.StatusUnbounded
	default:
		return solver.StatusEngineError
	}
}

func headerObjective(header string) (float64, bool) {
	const marker = "objective value"
	i := strings.Index(strings.ToLower(header), marker)
	if i < 0 {
		return 0, false
	}
	fields := strings.Fields(header[i+len(marker):])
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Result maps the solution onto m's variables. Columns cbc did not print are
// zero; values above one half count as set. The objective is converted back
// from the negated form WriteLP emits for maximisation.
func (s *Solution) Result(m *milp.Model) *solver.Result {
	res := &solver.Result{Status: s.Status}
	if !s.Status.HasSolution() {
		res.Message = s.Header
		return res
	}
	res.Values = make(milp.Assignment, m.NumVars())
	for _, v := range m.Variables {
		res.Values[v.ID] = s.Values[v.Name] > 0.5
	}
	res.Objective = s.Objective
	if m.Maximize {
		res.Objective = -s.Objective
	}
	if s.Status == solver.StatusFeasible {
		res.Message = s.Header
	}
	return res
}
