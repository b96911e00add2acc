package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/workshop-scheduler/internal/dto"
	"github.com/noah-isme/workshop-scheduler/internal/loader"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/builder"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/decoder"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/pipeline"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/preference"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
	appErrors "github.com/noah-isme/workshop-scheduler/pkg/errors"
)

// EngineFactory returns an engine of kind bounded by timeLimit.
type EngineFactory func(kind solver.Kind, timeLimit time.Duration) (solver.Solver, error)

// SolveConfig tunes SolveService.
type SolveConfig struct {
	DefaultEngine    solver.Kind
	DefaultTimeLimit time.Duration
	Tolerance        float64
	BoundMaxVars     int
	Workers          int
	CacheTTL         time.Duration
}

// Instance is a validated solve request ready for the pipeline.
type Instance struct {
	Records   []preference.Record
	Policy    policy.Policy
	Engine    solver.Kind
	TimeLimit time.Duration
}

// SolveService turns API payloads into pipeline runs.
type SolveService struct {
	engines   EngineFactory
	policy    policy.Policy
	scores    loader.ScoreTable
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       SolveConfig
}

// NewSolveService constructs the solve service. base is the configured
// policy that request overrides are applied on top of.
func NewSolveService(engines EngineFactory, base policy.Policy, scores loader.ScoreTable, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg SolveConfig) *SolveService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(scores) == 0 {
		scores = loader.DefaultScoreTable()
	}
	if cfg.DefaultEngine == "" {
		cfg.DefaultEngine = solver.KindGophersat
	}
	return &SolveService{
		engines:   engines,
		policy:    base,
		scores:    scores,
		cache:     cache,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Prepare validates req and resolves defaults.
func (s *SolveService) Prepare(req dto.SolveRequest) (*Instance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	pol, err := s.mergePolicy(req.Policy)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidPolicy.Code, appErrors.ErrInvalidPolicy.Status, err.Error())
	}
	records, err := s.records(req.Requesters)
	if err != nil {
		return nil, err
	}
	in := &Instance{
		Records:   records,
		Policy:    pol,
		Engine:    s.cfg.DefaultEngine,
		TimeLimit: s.cfg.DefaultTimeLimit,
	}
	if req.Engine != "" {
		in.Engine = solver.Kind(req.Engine)
	}
	if req.TimeLimitSeconds > 0 {
		in.TimeLimit = time.Duration(req.TimeLimitSeconds) * time.Second
	}
	return in, nil
}

func (s *SolveService) mergePolicy(in *dto.PolicyInput) (policy.Policy, error) {
	if in == nil {
		return s.policy, nil
	}
	spec := s.policy.Spec()
	if in.MaxChoices != nil {
		spec.MaxChoices = *in.MaxChoices
	}
	if in.MinOccupancy != nil {
		spec.MinOccupancy = *in.MinOccupancy
	}
	if in.MaxOccupancy != nil {
		spec.MaxOccupancy = *in.MaxOccupancy
	}
	if len(in.Slots) > 0 {
		spec.Slots = in.Slots
	}
	if in.Overrides != nil {
		spec.Overrides = in.Overrides
	}
	return policy.New(spec)
}

func (s *SolveService) records(in []dto.RequesterInput) ([]preference.Record, error) {
	out := make([]preference.Record, len(in))
	for i, r := range in {
		choices := make([]preference.Choice, len(r.Choices))
		for rank, c := range r.Choices {
			score := 0.0
			if c.Score != nil {
				score = *c.Score
			} else {
				v, ok := s.scores.Score(rank)
				if !ok {
					return nil, appErrors.Clone(appErrors.ErrMalformedInput,
						fmt.Sprintf("requester %d: rank %d has no default score", r.ID, rank))
				}
				score = v
			}
			choices[rank] = preference.Choice{Slot: c.Slot, Score: score}
		}
		out[i] = preference.Record{RequesterID: r.ID, Label: r.Label, Size: r.Size, Choices: choices}
	}
	return out, nil
}

// Solve runs req synchronously. Proven optima are cached by model
// fingerprint and engine.
func (s *SolveService) Solve(ctx context.Context, req dto.SolveRequest) (*dto.SolveResponse, error) {
	in, err := s.Prepare(req)
	if err != nil {
		return nil, err
	}
	p, f, err := s.formulate(in)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("solve:%s:%s", f.Model.Fingerprint(), p.Engine())
	var cached dto.SolveResponse
	if s.cache.Get(ctx, key, &cached) {
		relabel(&cached, f.Index)
		cached.Cached = true
		return &cached, nil
	}

	out, err := p.Solve(ctx, f)
	if err != nil {
		return nil, TranslateError(err)
	}
	resp := NewSolveResponse(out)
	if out.Status == solver.StatusOptimal {
		s.cache.Set(ctx, key, resp, s.cfg.CacheTTL)
	}
	return resp, nil
}

// Execute runs a prepared instance without the cache.
func (s *SolveService) Execute(ctx context.Context, in *Instance) (*pipeline.Outcome, error) {
	p, f, err := s.formulate(in)
	if err != nil {
		return nil, err
	}
	out, err := p.Solve(ctx, f)
	if err != nil {
		return nil, TranslateError(err)
	}
	return out, nil
}

func (s *SolveService) formulate(in *Instance) (*pipeline.Pipeline, *builder.Formulation, error) {
	if s.engines == nil {
		return nil, nil, appErrors.ErrEngineUnavailable
	}
	engine, err := s.engines(in.Engine, in.TimeLimit)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrEngineUnavailable.Code, appErrors.ErrEngineUnavailable.Status, err.Error())
	}
	p, err := pipeline.New(pipeline.Config{
		Solver:       engine,
		Logger:       s.logger,
		Workers:      s.cfg.Workers,
		Tolerance:    s.cfg.Tolerance,
		BoundMaxVars: s.cfg.BoundMaxVars,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrEngineUnavailable.Code, appErrors.ErrEngineUnavailable.Status, "failed to create pipeline")
	}
	idx, err := preference.Build(in.Records, in.Policy)
	if err != nil {
		return nil, nil, TranslateError(err)
	}
	f, err := p.Build(idx, in.Policy)
	if err != nil {
		return nil, nil, TranslateError(err)
	}
	return p, f, nil
}

// TranslateError maps optimisation failures onto API errors.
func TranslateError(err error) error {
	var (
		appErr    *appErrors.Error
		malformed *preference.MalformedPreferenceError
		construct *builder.ModelConstructionError
		integrity *decoder.SolutionIntegrityError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &malformed):
		return appErrors.Wrap(err, appErrors.ErrMalformedInput.Code, appErrors.ErrMalformedInput.Status, malformed.Error())
	case errors.Is(err, policy.ErrInvalidPolicy):
		return appErrors.Wrap(err, appErrors.ErrInvalidPolicy.Code, appErrors.ErrInvalidPolicy.Status, err.Error())
	case errors.As(err, &construct):
		return appErrors.Wrap(err, appErrors.ErrModelConstruction.Code, appErrors.ErrModelConstruction.Status, construct.Error())
	case errors.As(err, &integrity):
		return appErrors.Wrap(err, appErrors.ErrSolutionIntegrity.Code, appErrors.ErrSolutionIntegrity.Status, integrity.Error())
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to solve")
	}
}

// NewSolveResponse flattens an outcome for the API.
func NewSolveResponse(out *pipeline.Outcome) *dto.SolveResponse {
	resp := &dto.SolveResponse{
		Kind:        out.Kind,
		Status:      out.Status.String(),
		Engine:      out.Engine,
		Message:     out.Message,
		Fingerprint: out.Fingerprint.String(),
		Stats:       out.Stats,
		Objective:   out.Objective(),
		Gap:         out.Gap,
		ElapsedMs:   out.Elapsed.Milliseconds(),
		Assignments: []dto.AssignmentView{},
		Unassigned:  []int{},
		Slots:       []dto.SlotView{},
	}
	if out.Bound != nil && !out.Bound.Skipped {
		v := out.Bound.Value
		resp.Bound = &v
	}
	if out.Solution == nil {
		return resp
	}
	for _, a := range out.Solution.Assignments {
		resp.Assignments = append(resp.Assignments, dto.AssignmentView{
			RequesterID: a.RequesterID,
			Label:       a.Label,
			Slot:        a.Slot,
			Rank:        a.Rank,
			Size:        a.Size,
			Score:       a.Score,
		})
	}
	resp.Unassigned = append(resp.Unassigned, out.Solution.Unassigned...)
	for _, st := range out.Solution.Slots {
		resp.Slots = append(resp.Slots, dto.SlotView{
			Slot:         st.Slot,
			Open:         st.Open,
			Occupancy:    st.Occupancy,
			Groups:       st.Groups,
			MinOccupancy: st.Bounds.Min,
			MaxOccupancy: st.Bounds.Max,
		})
	}
	return resp
}

// relabel restores labels from the current request; they do not enter the
// model and so are not part of the cache key.
func relabel(resp *dto.SolveResponse, idx *preference.Index) {
	for i := range resp.Assignments {
		if r, ok := idx.Requester(resp.Assignments[i].RequesterID); ok {
			resp.Assignments[i].Label = r.Label
		}
	}
}
