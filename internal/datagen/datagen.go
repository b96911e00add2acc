// Package datagen produces synthetic family instances with controllable
// demand patterns.
package datagen

import (
	"fmt"
	"math/rand"

	"github.com/noah-isme/workshop-scheduler/internal/loader"
)

// Mode selects how preferred days are drawn.
type Mode string

const (
	// ModeUniform draws days uniformly over the whole range.
	ModeUniform Mode = "uniform"
	// ModeStressed concentrates 75% of choices in the first quarter of the range.
	ModeStressed Mode = "stressed"
	// ModeBlindSpot draws only from the first 60% of the range, leaving the
	// tail unrequested.
	ModeBlindSpot Mode = "blind_spot"
)

// Modes lists the supported modes.
func Modes() []Mode { return []Mode{ModeUniform, ModeStressed, ModeBlindSpot} }

// Options configure Generate. Zero values take the defaults.
type Options struct {
	Families  int
	Mode      Mode
	Seed      int64
	Choices   int
	FirstSlot int
	LastSlot  int
	MinSize   int
	MaxSize   int
}

func (o *Options) defaults() {
	if o.Families <= 0 {
		o.Families = 5000
	}
	if o.Mode == "" {
		o.Mode = ModeStressed
	}
	if o.Choices <= 0 {
		o.Choices = 10
	}
	if o.FirstSlot == 0 && o.LastSlot == 0 {
		o.FirstSlot, o.LastSlot = 1, 100
	}
	if o.MinSize <= 0 {
		o.MinSize = 2
	}
	if o.MaxSize <= 0 {
		o.MaxSize = 9
	}
}

// Generate returns a dataset of families with unique, shuffled choices.
func Generate(opts Options) (*loader.Dataset, error) {
	opts.defaults()
	span := opts.LastSlot - opts.FirstSlot + 1
	if span <= 0 {
		return nil, fmt.Errorf("invalid slot range %d..%d", opts.FirstSlot, opts.LastSlot)
	}
	if opts.MinSize > opts.MaxSize {
		return nil, fmt.Errorf("invalid size range %d..%d", opts.MinSize, opts.MaxSize)
	}

	var draw func(*rand.Rand) int
	switch opts.Mode {
	case ModeUniform:
		draw = func(r *rand.Rand) int { return opts.FirstSlot + r.Intn(span) }
	case ModeStressed:
		hot := max(1, span/4)
		draw = func(r *rand.Rand) int {
			if r.Float64() < 0.75 || hot == span {
				return opts.FirstSlot + r.Intn(hot)
			}
			return opts.FirstSlot + hot + r.Intn(span-hot)
		}
	case ModeBlindSpot:
		span = max(1, span*6/10)
		draw = func(r *rand.Rand) int { return opts.FirstSlot + r.Intn(span) }
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}
	if opts.Choices > span {
		return nil, fmt.Errorf("%d choices do not fit in %d drawable slots", opts.Choices, span)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	ds := &loader.Dataset{Choices: opts.Choices, Rows: make([]loader.Row, 0, opts.Families)}
	for i := 0; i < opts.Families; i++ {
		seen := make(map[int]bool, opts.Choices)
		days := make([]int, 0, opts.Choices)
		for len(days) < opts.Choices {
			d := draw(rng)
			if seen[d] {
				continue
			}
			seen[d] = true
			days = append(days, d)
		}
		rng.Shuffle(len(days), func(a, b int) { days[a], days[b] = days[b], days[a] })
		ds.Rows = append(ds.Rows, loader.Row{
			Line:     i + 2,
			FamilyID: loader.FormatFamilyID(i),
			ID:       i,
			Members:  opts.MinSize + rng.Intn(opts.MaxSize-opts.MinSize+1),
			Days:     days,
		})
	}
	return ds, nil
}

// People returns the total number of members in ds.
func People(ds *loader.Dataset) int {
	total := 0
	for _, r := range ds.Rows {
		total += r.Members
	}
	return total
}
