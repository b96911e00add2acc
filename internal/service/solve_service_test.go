package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/workshop-scheduler/internal/dto"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/builder"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/decoder"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/pipeline"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/preference"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
	"github.com/noah-isme/workshop-scheduler/internal/solver/solvertest"
	appErrors "github.com/noah-isme/workshop-scheduler/pkg/errors"
)

// memoryCache stores JSON payloads the way the redis repository does.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memoryCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func testPolicy() policy.Policy {
	return policy.MustNew(policy.Spec{MaxChoices: 2, MinOccupancy: 4, MaxOccupancy: 6, Slots: policy.Range(1, 2)})
}

func score(v float64) *float64 { return &v }

func solveRequest() dto.SolveRequest {
	return dto.SolveRequest{
		Requesters: []dto.RequesterInput{
			{ID: 1, Label: "F0001", Size: 3, Choices: []dto.ChoiceInput{{Slot: 1}, {Slot: 2}}},
			{ID: 2, Label: "F0002", Size: 2, Choices: []dto.ChoiceInput{{Slot: 1, Score: score(90)}}},
		},
	}
}

func fixedEngines(s solver.Solver) EngineFactory {
	return func(kind solver.Kind, timeLimit time.Duration) (solver.Solver, error) {
		return s, nil
	}
}

func newSolveServiceForTest(t *testing.T, s solver.Solver, cache *CacheService) *SolveService {
	t.Helper()
	return NewSolveService(fixedEngines(s), testPolicy(), nil, cache, nil, zap.NewNop(), SolveConfig{DefaultTimeLimit: time.Minute})
}

func TestSolveServicePrepareFillsDefaults(t *testing.T) {
	svc := newSolveServiceForTest(t, solvertest.Fixed(solver.StatusOptimal, nil, nil), nil)

	in, err := svc.Prepare(solveRequest())
	require.NoError(t, err)

	assert.Equal(t, solver.KindGophersat, in.Engine)
	assert.Equal(t, time.Minute, in.TimeLimit)
	require.Len(t, in.Records, 2)
	assert.Equal(t, []preference.Choice{{Slot: 1, Score: 100}, {Slot: 2, Score: 90}}, in.Records[0].Choices)
	assert.Equal(t, 90.0, in.Records[1].Choices[0].Score)
}

func TestSolveServicePrepareAppliesOverrides(t *testing.T) {
	svc := newSolveServiceForTest(t, solvertest.Fixed(solver.StatusOptimal, nil, nil), nil)
	req := solveRequest()
	maxOcc := 8
	req.Policy = &dto.PolicyInput{MaxOccupancy: &maxOcc, Slots: []int{1, 2, 3}}
	req.Engine = "exhaustive"
	req.TimeLimitSeconds = 5

	in, err := svc.Prepare(req)
	require.NoError(t, err)

	assert.Equal(t, solver.KindExhaustive, in.Engine)
	assert.Equal(t, 5*time.Second, in.TimeLimit)
	assert.Equal(t, 3, in.Policy.NumSlots())
	assert.Equal(t, policy.Bounds{Min: 4, Max: 8}, in.Policy.Bounds(2))
}

func TestSolveServicePrepareErrors(t *testing.T) {
	svc := newSolveServiceForTest(t, solvertest.Fixed(solver.StatusOptimal, nil, nil), nil)

	cases := []struct {
		name   string
		mutate func(*dto.SolveRequest)
		code   string
	}{
		{"unknown engine", func(r *dto.SolveRequest) { r.Engine = "glpk" }, appErrors.ErrValidation.Code},
		{"negative id", func(r *dto.SolveRequest) { r.Requesters[0].ID = -1 }, appErrors.ErrValidation.Code},
		{"inverted bounds", func(r *dto.SolveRequest) {
			lo, hi := 9, 3
			r.Policy = &dto.PolicyInput{MinOccupancy: &lo, MaxOccupancy: &hi}
		}, appErrors.ErrInvalidPolicy.Code},
		{"rank without score", func(r *dto.SolveRequest) {
			r.Requesters[0].Choices = make([]dto.ChoiceInput, 11)
		}, appErrors.ErrMalformedInput.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := solveRequest()
			tc.mutate(&req)
			_, err := svc.Prepare(req)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
}

func TestSolveServiceSolve(t *testing.T) {
	engine := solvertest.Fixed(solver.StatusOptimal, []string{"x_1_1", "x_2_1", "z_1"}, nil)
	svc := newSolveServiceForTest(t, engine, nil)

	resp, err := svc.Solve(context.Background(), solveRequest())
	require.NoError(t, err)

	assert.Equal(t, pipeline.KindSolved, resp.Kind)
	assert.Equal(t, "optimal", resp.Status)
	assert.InDelta(t, 190.0, resp.Objective, 1e-9)
	assert.Len(t, resp.Assignments, 2)
	assert.Empty(t, resp.Unassigned)
	require.Len(t, resp.Slots, 2)
	assert.Equal(t, 5, resp.Slots[0].Occupancy)
	assert.False(t, resp.Slots[1].Open)
	assert.NotEmpty(t, resp.Fingerprint)
	assert.False(t, resp.Cached)
}

func TestSolveServiceDuplicateRequesterIsMalformed(t *testing.T) {
	svc := newSolveServiceForTest(t, solvertest.Fixed(solver.StatusOptimal, nil, nil), nil)
	req := solveRequest()
	req.Requesters[1].ID = 1

	_, err := svc.Solve(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMalformedInput.Code, appErrors.FromError(err).Code)
}

func TestSolveServiceCachesOptimaOnly(t *testing.T) {
	store := newMemoryCache()
	cache := NewCacheService(store, nil, time.Minute, zap.NewNop(), true)
	engine := solvertest.Fixed(solver.StatusOptimal, []string{"x_1_1", "x_2_1", "z_1"}, nil)
	svc := newSolveServiceForTest(t, engine, cache)

	first, err := svc.Solve(context.Background(), solveRequest())
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, 1, store.len())

	req := solveRequest()
	req.Requesters[0].Label = "renamed"
	second, err := svc.Solve(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, 1, engine.Calls())
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	for _, a := range second.Assignments {
		if a.RequesterID == 1 {
			assert.Equal(t, "renamed", a.Label)
		}
	}

	feasible := solvertest.Fixed(solver.StatusFeasible, []string{"x_1_1", "x_2_1", "z_1"}, nil)
	otherStore := newMemoryCache()
	other := NewSolveService(fixedEngines(feasible), testPolicy(), nil, NewCacheService(otherStore, nil, time.Minute, nil, true), nil, nil, SolveConfig{})
	_, err = other.Solve(context.Background(), solveRequest())
	require.NoError(t, err)
	assert.Zero(t, otherStore.len())
}

func TestSolveServiceCacheFailureFallsThrough(t *testing.T) {
	store := newMemoryCache()
	store.err = errors.New("connection refused")
	cache := NewCacheService(store, nil, time.Minute, zap.NewNop(), true)
	engine := solvertest.Fixed(solver.StatusOptimal, []string{"x_1_1", "x_2_1", "z_1"}, nil)
	svc := newSolveServiceForTest(t, engine, cache)

	resp, err := svc.Solve(context.Background(), solveRequest())
	require.NoError(t, err)
	assert.Equal(t, pipeline.KindSolved, resp.Kind)
	assert.Equal(t, 1, engine.Calls())
}

func TestSolveServiceEngineUnavailable(t *testing.T) {
	engines := func(kind solver.Kind, timeLimit time.Duration) (solver.Solver, error) {
		return nil, errors.New("cbc binary not found")
	}
	svc := NewSolveService(engines, testPolicy(), nil, nil, nil, nil, SolveConfig{})

	_, err := svc.Solve(context.Background(), solveRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEngineUnavailable.Code, appErrors.FromError(err).Code)
}

func TestTranslateError(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{&preference.MalformedPreferenceError{RequesterID: 1, Reason: preference.ReasonDuplicateRequester}, appErrors.ErrMalformedInput.Code},
		{policy.ErrInvalidPolicy, appErrors.ErrInvalidPolicy.Code},
		{&builder.ModelConstructionError{Reason: "x"}, appErrors.ErrModelConstruction.Code},
		{&decoder.SolutionIntegrityError{Reason: "x"}, appErrors.ErrSolutionIntegrity.Code},
		{appErrors.ErrNotFound, appErrors.ErrNotFound.Code},
		{errors.New("boom"), appErrors.ErrInternal.Code},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, appErrors.FromError(TranslateError(tc.err)).Code, "%v", tc.err)
	}
}
