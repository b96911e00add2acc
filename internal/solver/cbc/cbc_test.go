package cbc

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/milp"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
)

func model() *milp.Model {
	return &milp.Model{
		Name:     "t",
		Maximize: true,
		Variables: []milp.Variable{
			{ID: 0, Name: "x_1_1", Kind: milp.KindAssignment},
			{ID: 1, Name: "x_2_1", Kind: milp.KindAssignment},
			{ID: 2, Name: "z_1", Kind: milp.KindOpen},
		},
		Objective: []milp.Term{{Var: 0, Coef: 100}, {Var: 1, Coef: 90}},
		Constraints: []milp.Constraint{
			{Name: "lo_1", Terms: []milp.Term{{Var: 0, Coef: 1}, {Var: 1, Coef: 1}, {Var: 2, Coef: -2}}, Sense: milp.GE},
			{Name: "up_1", Terms: []milp.Term{{Var: 0, Coef: 1}, {Var: 1, Coef: 1}, {Var: 2, Coef: -2}}, Sense: milp.LE},
		},
	}
}

func TestParseSolutionHeaders(t *testing.T) {
	cases := map[string]solver.Status{
		"Optimal - objective value -190.00000000":                                      solver.StatusOptimal,
		"Stopped on time - objective value -180.00000000":                              solver.StatusFeasible,
		"Stopped on time (no integer solution - continuous used) - objective value -1": solver.StatusEngineError,
		"Infeasible - objective value 0.00000000":                                      solver.StatusInfeasible,
		"Integer infeasible - objective value 0.00000000":                              solver.StatusInfeasible,
		"Unbounded - objective value 0.00000000":                                       solver.StatusUnbounded,
		"Something odd":                                                                solver.StatusEngineError,
	}
	for header, want := range cases {
		sol, err := ParseSolution(strings.NewReader(header + "\n"))
		require.NoError(t, err)
		assert.Equal(t, want, sol.Status, header)
	}
}

func TestParseSolutionValues(t *testing.T) {
	raw := "Optimal - objective value -190.00000000\n" +
		"      0 x_1_1                    1                      -100\n" +
		"**    1 x_2_1                    0.9999999              -90\n" +
		"      2 z_1                      1                      0\n"
	sol, err := ParseSolution(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, -190.0, sol.Objective)

	res := sol.Result(model())
	assert.Equal(t, solver.StatusOptimal, res.Status)
	assert.Equal(t, 190.0, res.Objective)
	assert.Equal(t, milp.Assignment{0: true, 1: true, 2: true}, res.Values)
}

func TestParseSolutionMissingColumnsAreZero(t *testing.T) {
	sol, err := ParseSolution(strings.NewReader("Optimal - objective value 0\n"))
	require.NoError(t, err)
	res := sol.Result(model())
	assert.Equal(t, milp.Assignment{0: false, 1: false, 2: false}, res.Values)
}

func TestParseSolutionEmpty(t *testing.T) {
	_, err := ParseSolution(strings.NewReader(""))
	require.Error(t, err)
}

func fakeRunner(content string, runErr error, captured *[]string) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		*captured = append([]string{name}, args...)
		for i, a := range args {
			if a == "-solu" && content != "" {
				if err := os.WriteFile(args[i+1], []byte(content), 0o644); err != nil {
					return nil, err
				}
			}
		}
		return []byte("Coin0506I Presolve"), runErr
	}
}

func TestSolveRunsCBC(t *testing.T) {
	var args []string
	s := New(Config{
		Path:    "/opt/cbc/bin/cbc",
		WorkDir: t.TempDir(),
		Runner:  fakeRunner("Optimal - objective value -190\n 0 x_1_1 1 -100\n 1 x_2_1 1 -90\n 2 z_1 1 0\n", nil, &args),
	})
	res, err := s.Solve(context.Background(), model())
	require.NoError(t, err)
	assert.Equal(t, solver.StatusOptimal, res.Status)
	assert.Equal(t, 190.0, res.Objective)
	assert.Equal(t, "cbc", res.Engine)

	require.NotEmpty(t, args)
	assert.Equal(t, "/opt/cbc/bin/cbc", args[0])
	assert.Equal(t, []string{"-sec", "450", "-ratio", "0.01"}, args[1:5])
	assert.Equal(t, "-import", args[5])
	assert.True(t, strings.HasSuffix(args[6], "model.lp"))
}

func TestSolveWithoutSolutionFile(t *testing.T) {
	var args []string
	s := New(Config{WorkDir: t.TempDir(), Runner: fakeRunner("", errors.New("exit status 1"), &args)})
	res, err := s.Solve(context.Background(), model())
	require.NoError(t, err)
	assert.Equal(t, solver.StatusEngineError, res.Status)
	assert.Contains(t, res.Message, "exit status 1")
}
