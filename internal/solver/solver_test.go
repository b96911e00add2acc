package solver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/milp"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
	"github.com/noah-isme/workshop-scheduler/internal/solver/solvertest"
)

func TestStatusHelpers(t *testing.T) {
	assert.True(t, solver.StatusOptimal.HasSolution())
	assert.True(t, solver.StatusFeasible.HasSolution())
	assert.False(t, solver.StatusInfeasible.HasSolution())
	assert.False(t, solver.StatusUnbounded.HasSolution())
	assert.False(t, solver.StatusEngineError.HasSolution())
	assert.Equal(t, "engine_error", solver.StatusEngineError.String())
}

func TestInterrupted(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-expired.Done()

	status, _ := solver.Interrupted(expired, true)
	assert.Equal(t, solver.StatusFeasible, status)
	status, msg := solver.Interrupted(expired, false)
	assert.Equal(t, solver.StatusEngineError, status)
	assert.Equal(t, solver.MsgTimeLimitNoIncumbent, msg)

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	_, msg = solver.Interrupted(cancelled, false)
	assert.Equal(t, solver.MsgCancelledNoIncumbent, msg)
}

func TestWithTimeLimitMapsTimeoutToEngineError(t *testing.T) {
	s := solver.WithTimeLimit(solvertest.Blocking(), 10*time.Millisecond)
	res, err := s.Solve(context.Background(), &milp.Model{})
	require.NoError(t, err)
	assert.Equal(t, solver.StatusEngineError, res.Status)
	assert.Equal(t, solver.MsgTimeLimitNoIncumbent, res.Message)
}

func TestInstrumentFillsEngineAndElapsed(t *testing.T) {
	inner := solvertest.Fixed(solver.StatusOptimal, nil, nil)
	inner.Engine = "stub"
	res, err := solver.Instrument(inner, zap.NewNop(), nil).Solve(context.Background(), &milp.Model{})
	require.NoError(t, err)
	assert.Equal(t, "stub", res.Engine)
}

func TestInstrumentPropagatesErrors(t *testing.T) {
	inner := &solvertest.Scripted{Respond: func(ctx context.Context, m *milp.Model) (*solver.Result, error) {
		return nil, errors.New("boom")
	}}
	_, err := solver.Instrument(inner, nil, nil).Solve(context.Background(), &milp.Model{})
	require.EqualError(t, err, "boom")

	empty := &solvertest.Scripted{Respond: func(ctx context.Context, m *milp.Model) (*solver.Result, error) {
		return nil, nil
	}}
	_, err = solver.Instrument(empty, nil, nil).Solve(context.Background(), &milp.Model{})
	require.Error(t, err)
}
