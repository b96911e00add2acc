package bound

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/builder"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/milp"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/preference"
)

func vars(n int) []milp.Variable {
	out := make([]milp.Variable, n)
	for i := range out {
		out[i] = milp.Variable{ID: milp.VarID(i), Name: string(rune('a' + i)), Kind: milp.KindAssignment}
	}
	return out
}

func TestRelaxFractionalOptimum(t *testing.T) {
	m := &milp.Model{
		Maximize:  true,
		Variables: vars(2),
		Objective: []milp.Term{{Var: 0, Coef: 3}, {Var: 1, Coef: 2}},
		Constraints: []milp.Constraint{
			{Name: "cap", Terms: []milp.Term{{Var: 0, Coef: 2}, {Var: 1, Coef: 2}}, Sense: milp.LE, RHS: 3},
		},
	}
	b, err := Relax(context.Background(), m, 0)
	require.NoError(t, err)
	// x0 = 1, x1 = 0.5
	assert.InDelta(t, 4.0, b.Value, 1e-6)
	assert.False(t, b.Skipped)
}

func TestRelaxMinimisationWithCover(t *testing.T) {
	m := &milp.Model{
		Variables: vars(2),
		Objective: []milp.Term{{Var: 0, Coef: 4}, {Var: 1, Coef: 1}},
		Constraints: []milp.Constraint{
			{Name: "cover", Terms: []milp.Term{{Var: 0, Coef: 1}, {Var: 1, Coef: 1}}, Sense: milp.GE, RHS: 1.5},
		},
	}
	b, err := Relax(context.Background(), m, 0)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, b.Value, 1e-6)
}

func TestRelaxInfeasible(t *testing.T) {
	m := &milp.Model{
		Maximize:  true,
		Variables: vars(1),
		Objective: []milp.Term{{Var: 0, Coef: 1}},
		Constraints: []milp.Constraint{
			{Name: "big", Terms: []milp.Term{{Var: 0, Coef: 1}}, Sense: milp.GE, RHS: 2},
		},
	}
	_, err := Relax(context.Background(), m, 0)
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestRelaxBoundsSemicontinuousModel(t *testing.T) {
	p := policy.MustNew(policy.Spec{MaxChoices: 2, MinOccupancy: 4, MaxOccupancy: 6, Slots: policy.Range(1, 2)})
	idx, err := preference.Build([]preference.Record{
		{RequesterID: 1, Size: 3, Choices: []preference.Choice{{Slot: 1, Score: 100}}},
	}, p)
	require.NoError(t, err)
	f, err := builder.Build(idx, p)
	require.NoError(t, err)

	// The integer optimum is 0 because a lone group of 3 cannot open a slot,
	// but half-open slots make the relaxation reach the full score.
	b, err := Relax(context.Background(), f.Model, 0)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, b.Value, 1e-6)

	gap, ok := Gap(b, 0)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, gap, 1e-9)
}

func TestRelaxSkipsLargeModels(t *testing.T) {
	m := &milp.Model{Maximize: true, Variables: vars(3)}
	b, err := Relax(context.Background(), m, 2)
	require.NoError(t, err)
	assert.True(t, b.Skipped)
	assert.Contains(t, b.Reason, "exceed")

	_, ok := Gap(b, 1)
	assert.False(t, ok)
}

func TestRelaxEmptyModelAndCancelledContext(t *testing.T) {
	b, err := Relax(context.Background(), &milp.Model{Maximize: true}, 0)
	require.NoError(t, err)
	assert.Zero(t, b.Value)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Relax(ctx, &milp.Model{Maximize: true, Variables: vars(1)}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGap(t *testing.T) {
	gap, ok := Gap(Bound{Value: 200}, 190)
	assert.True(t, ok)
	assert.InDelta(t, 0.05, gap, 1e-12)

	gap, _ = Gap(Bound{Value: 0.5}, 0.5)
	assert.Zero(t, gap)
}
