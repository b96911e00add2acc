package pipeline_test

import (
	"context"
	"math/rand"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/builder"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/pipeline"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/preference"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
	"github.com/noah-isme/workshop-scheduler/internal/solver/exhaustive"
	"github.com/noah-isme/workshop-scheduler/internal/solver/gophersat"
)

func workshopPolicy(slots int) policy.Policy {
	return policy.MustNew(policy.Spec{
		MaxChoices:   policy.DefaultMaxChoices,
		MinOccupancy: policy.DefaultMinOccupancy,
		MaxOccupancy: policy.DefaultMaxOccupancy,
		Slots:        policy.Range(1, slots),
	})
}

func only(slot int, score float64) []preference.Choice {
	return []preference.Choice{{Slot: slot, Score: score}}
}

func run(s solver.Solver, recs []preference.Record, p policy.Policy) *pipeline.Outcome {
	pl, err := pipeline.New(pipeline.Config{Solver: solver.WithTimeLimit(s, 30*time.Second)})
	Expect(err).NotTo(HaveOccurred())
	out, err := pl.Run(context.Background(), recs, p)
	Expect(err).NotTo(HaveOccurred())
	return out
}

// randomInstance draws small instances whose models stay within reach of the
// exhaustive engine.
func randomInstance(rng *rand.Rand) ([]preference.Record, policy.Policy) {
	p := policy.MustNew(policy.Spec{MaxChoices: 3, MinOccupancy: 4, MaxOccupancy: 7, Slots: policy.Range(1, 4)})
	n := 3 + rng.Intn(3)
	recs := make([]preference.Record, 0, n)
	for id := 1; id <= n; id++ {
		k := 1 + rng.Intn(3)
		slots := rng.Perm(4)[:k]
		choices := make([]preference.Choice, k)
		for rank, s := range slots {
			choices[rank] = preference.Choice{Slot: s + 1, Score: float64(10 - 3*rank + rng.Intn(3))}
		}
		recs = append(recs, preference.Record{RequesterID: id, Size: 1 + rng.Intn(4), Choices: choices})
	}
	return recs, p
}

var _ = Describe("Solving workshop instances", func() {
	var engine solver.Solver

	BeforeEach(func() {
		engine = gophersat.New(gophersat.Config{})
	})

	It("opens a slot when the interested groups reach the minimum (scenario A)", func() {
		recs := []preference.Record{
			{RequesterID: 1, Size: 40, Choices: only(1, 100)},
			{RequesterID: 2, Size: 40, Choices: only(1, 100)},
			{RequesterID: 3, Size: 40, Choices: only(1, 100)},
		}
		out := run(engine, recs, workshopPolicy(5))

		Expect(out.Kind).To(Equal(pipeline.KindSolved))
		Expect(out.Status).To(Equal(solver.StatusOptimal))
		Expect(out.Solution.Assignments).To(HaveLen(3))
		Expect(out.Solution.Occupancy(1)).To(Equal(120))
		Expect(out.Solution.Slots[0].Open).To(BeTrue())
		Expect(out.Objective()).To(BeNumerically("~", 300, 1e-6))
	})

	It("keeps an under-demanded slot closed (scenario B)", func() {
		recs := []preference.Record{{RequesterID: 7, Size: 50, Choices: only(2, 100)}}
		out := run(engine, recs, workshopPolicy(5))

		Expect(out.Kind).To(Equal(pipeline.KindNoAssignments))
		Expect(out.Solution.Unassigned).To(ConsistOf(7))
		Expect(out.Solution.Occupancy(2)).To(BeZero())
		Expect(out.Solution.Slots[1].Open).To(BeFalse())
		Expect(out.Objective()).To(BeZero())
	})

	It("fills an over-demanded slot with the best-scoring groups (scenario C)", func() {
		var recs []preference.Record
		var weak []int
		for id := 0; id < 310; id++ {
			score := 10.0
			if id%31 == 0 {
				score = 1
				weak = append(weak, id)
			}
			recs = append(recs, preference.Record{RequesterID: id, Size: 1, Choices: only(3, score)})
		}
		Expect(weak).To(HaveLen(10))

		out := run(engine, recs, workshopPolicy(5))

		Expect(out.Kind).To(Equal(pipeline.KindSolved))
		Expect(out.Solution.Occupancy(3)).To(Equal(300))
		Expect(out.Solution.Unassigned).To(ConsistOf(weak))
		Expect(out.Objective()).To(BeNumerically("~", 3000, 1e-6))
	})

	It("never forces a slot open when total interest is below the minimum", func() {
		recs := []preference.Record{
			{RequesterID: 1, Size: 30, Choices: []preference.Choice{{Slot: 4, Score: 100}, {Slot: 1, Score: 50}}},
			{RequesterID: 2, Size: 30, Choices: only(4, 100)},
			{RequesterID: 3, Size: 90, Choices: only(1, 100)},
		}
		out := run(engine, recs, workshopPolicy(5))

		Expect(out.Solution.Occupancy(4)).To(BeZero())
		Expect(out.Solution.Occupancy(1)).To(Equal(120))
	})

	Context("on random small instances", func() {
		It("upholds every solution invariant and agrees with exhaustive search", func() {
			rng := rand.New(rand.NewSource(20240601))
			for i := 0; i < 25; i++ {
				recs, p := randomInstance(rng)

				fast := run(engine, recs, p)
				exact := run(exhaustive.New(0), recs, p)

				Expect(fast.Kind).To(BeElementOf(pipeline.KindSolved, pipeline.KindNoAssignments))
				Expect(fast.Objective()).To(BeNumerically("~", exact.Objective(), 1e-6), "instance %d", i)

				idx, err := preference.Build(recs, p)
				Expect(err).NotTo(HaveOccurred())
				sizes := map[int]int{}
				for _, a := range fast.Solution.Assignments {
					_, listed := idx.Score(a.RequesterID, a.Slot)
					Expect(listed).To(BeTrue())
					sizes[a.Slot] += a.Size
				}
				for _, st := range fast.Solution.Slots {
					Expect(st.Occupancy).To(Equal(sizes[st.Slot]))
					Expect(st.Open).To(Equal(st.Occupancy > 0))
					Expect(st.Bounds.Contains(st.Occupancy)).To(BeTrue())
				}
				Expect(len(fast.Solution.Assignments) + len(fast.Solution.Unassigned)).To(Equal(len(recs)))

				if fast.Bound != nil {
					Expect(fast.Bound.Value).To(BeNumerically(">=", fast.Objective()-1e-6))
				}
			}
		})
	})

	Describe("model construction", func() {
		It("creates exactly one variable per listed pair and rebuilds identically", func() {
			rng := rand.New(rand.NewSource(7))
			recs, p := randomInstance(rng)
			idx, err := preference.Build(recs, p)
			Expect(err).NotTo(HaveOccurred())

			listed := 0
			for _, r := range recs {
				listed += len(r.Choices)
			}
			first, err := builder.Build(idx, p, builder.WithWorkers(1))
			Expect(err).NotTo(HaveOccurred())
			second, err := builder.Build(idx, p, builder.WithWorkers(4))
			Expect(err).NotTo(HaveOccurred())

			Expect(len(first.Edges)).To(Equal(listed))
			Expect(first.Model.NumVars()).To(Equal(listed + p.NumSlots()))
			Expect(second.Model.Fingerprint()).To(Equal(first.Model.Fingerprint()))
			Expect(second.Model.Constraints).To(Equal(first.Model.Constraints))
		})
	})
})
