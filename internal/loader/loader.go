// Package loader reads family preference files and writes submissions.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/preference"
)

const (
	ColumnFamilyID = "familyID"
	ColumnMembers  = "nrMembers"
	ColumnSolution = "solution"
	dayPrefix      = "day"
	// Unassigned marks a family without a day in a submission.
	Unassigned = "x"
)

// ParseError points at the offending line of an input file.
type ParseError struct {
	Line   int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d, column %s: %v", e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Row is one family as read from the file.
type Row struct {
	Line     int
	FamilyID string
	ID       int
	Members  int
	Days     []int
	// Solution holds the raw solution cell when the file is a submission.
	Solution string
}

// Dataset is an ordered set of family rows.
type Dataset struct {
	Choices     int
	HasSolution bool
	Rows        []Row
}

// ParseFamilyID accepts numeric ids and F-prefixed ids such as F0042.
func ParseFamilyID(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "F"), "f")
	id, err := strconv.Atoi(s)
	if err != nil || s == "" {
		return 0, fmt.Errorf("invalid family id %q", raw)
	}
	return id, nil
}

// FormatFamilyID renders id in the generator's F%04d form.
func FormatFamilyID(id int) string { return fmt.Sprintf("F%04d", id) }

// Read parses a family CSV. Columns may come in any order; day columns must
// be day0..dayN without gaps.
func Read(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Line: 1, Err: errors.New("empty input")}
		}
		return nil, &ParseError{Line: 1, Err: err}
	}
	cols, err := mapHeader(header)
	if err != nil {
		return nil, &ParseError{Line: 1, Err: err}
	}

	ds := &Dataset{Choices: len(cols.days), HasSolution: cols.solution >= 0}
	line := 1
	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		if blank(rec) {
			continue
		}
		row, err := cols.row(rec, line)
		if err != nil {
			return nil, err
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

type columns struct {
	id, members, solution int
	days                  []int
}

func mapHeader(header []string) (columns, error) {
	cols := columns{id: -1, members: -1, solution: -1}
	days := map[int]int{}
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch {
		case name == ColumnFamilyID:
			cols.id = i
		case name == ColumnMembers:
			cols.members = i
		case name == ColumnSolution:
			cols.solution = i
		case strings.HasPrefix(name, dayPrefix):
			rank, err := strconv.Atoi(strings.TrimPrefix(name, dayPrefix))
			if err != nil || rank < 0 {
				return cols, fmt.Errorf("unexpected column %q", name)
			}
			if _, dup := days[rank]; dup {
				return cols, fmt.Errorf("duplicate column %q", name)
			}
			days[rank] = i
		}
	}
	if cols.id < 0 {
		return cols, fmt.Errorf("missing column %s", ColumnFamilyID)
	}
	if cols.members < 0 {
		return cols, fmt.Errorf("missing column %s", ColumnMembers)
	}
	ranks := make([]int, 0, len(days))
	for rank := range days {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)
	for i, rank := range ranks {
		if rank != i {
			return cols, fmt.Errorf("missing column %s%d", dayPrefix, i)
		}
		cols.days = append(cols.days, days[rank])
	}
	return cols, nil
}

func (c columns) row(rec []string, line int) (Row, error) {
	cell := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	row := Row{Line: line, FamilyID: cell(c.id), Solution: cell(c.solution)}

	id, err := ParseFamilyID(row.FamilyID)
	if err != nil {
		return row, &ParseError{Line: line, Column: ColumnFamilyID, Err: err}
	}
	row.ID = id

	members, err := strconv.Atoi(cell(c.members))
	if err != nil {
		return row, &ParseError{Line: line, Column: ColumnMembers, Err: fmt.Errorf("invalid size %q", cell(c.members))}
	}
	row.Members = members

	ended := false
	for rank, i := range c.days {
		raw := cell(i)
		name := dayPrefix + strconv.Itoa(rank)
		if raw == "" {
			ended = true
			continue
		}
		if ended {
			return row, &ParseError{Line: line, Column: name, Err: errors.New("day listed after an empty rank")}
		}
		day, err := strconv.Atoi(raw)
		if err != nil {
			return row, &ParseError{Line: line, Column: name, Err: fmt.Errorf("invalid day %q", raw)}
		}
		row.Days = append(row.Days, day)
	}
	return row, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Records converts the rows into preference records scored by table. Range
// and duplicate checks are left to the preference index.
func (d *Dataset) Records(table ScoreTable) ([]preference.Record, error) {
	out := make([]preference.Record, 0, len(d.Rows))
	for _, row := range d.Rows {
		choices := make([]preference.Choice, len(row.Days))
		for rank, day := range row.Days {
			score, ok := table.Score(rank)
			if !ok {
				return nil, &ParseError{Line: row.Line, Column: dayPrefix + strconv.Itoa(rank),
					Err: fmt.Errorf("rank %d has no score in a table of %d", rank, len(table))}
			}
			choices[rank] = preference.Choice{Slot: day, Score: score}
		}
		out = append(out, preference.Record{
			RequesterID: row.ID,
			Label:       row.FamilyID,
			Size:        row.Members,
			Choices:     choices,
		})
	}
	return out, nil
}

// Placements reads the solution column of a submission. Unassigned rows are
// absent from the result.
func (d *Dataset) Placements() (map[int]int, error) {
	if !d.HasSolution {
		return nil, &ParseError{Line: 1, Err: fmt.Errorf("missing column %s", ColumnSolution)}
	}
	placed := make(map[int]int, len(d.Rows))
	for _, row := range d.Rows {
		if row.Solution == "" || strings.EqualFold(row.Solution, Unassigned) {
			continue
		}
		day, err := strconv.Atoi(row.Solution)
		if err != nil {
			return nil, &ParseError{Line: row.Line, Column: ColumnSolution, Err: fmt.Errorf("invalid day %q", row.Solution)}
		}
		if _, dup := placed[row.ID]; dup {
			return nil, &ParseError{Line: row.Line, Column: ColumnFamilyID, Err: fmt.Errorf("family %s listed twice", row.FamilyID)}
		}
		placed[row.ID] = day
	}
	return placed, nil
}

// Write renders the dataset without a solution column.
func Write(w io.Writer, d *Dataset) error {
	return write(w, d, nil)
}

// WriteSubmission echoes every input row with its assigned day, or x.
func WriteSubmission(w io.Writer, d *Dataset, placed map[int]int) error {
	if placed == nil {
		placed = map[int]int{}
	}
	return write(w, d, placed)
}

func write(w io.Writer, d *Dataset, placed map[int]int) error {
	cw := csv.NewWriter(w)
	header := []string{ColumnFamilyID, ColumnMembers}
	for i := 0; i < d.Choices; i++ {
		header = append(header, dayPrefix+strconv.Itoa(i))
	}
	if placed != nil {
		header = append(header, ColumnSolution)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range d.Rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, row.FamilyID, strconv.Itoa(row.Members))
		for i := 0; i < d.Choices; i++ {
			if i < len(row.Days) {
				rec = append(rec, strconv.Itoa(row.Days[i]))
			} else {
				rec = append(rec, "")
			}
		}
		if placed != nil {
			if day, ok := placed[row.ID]; ok {
				rec = append(rec, strconv.Itoa(day))
			} else {
				rec = append(rec, Unassigned)
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %s: %w", row.FamilyID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
