// Package frame holds a small date-indexed table of float64 columns. Missing
// cells are NaN. Operations return new frames; only FFill and ReplaceInf
// rewrite cell values.
package frame

import (
	"fmt"
	"math"
	"sort"
	"time"
)

type Frame struct {
	index []time.Time
	names []string
	cols  map[string][]float64
}

// New creates an empty-column frame over index. The index is sorted and
// must not contain duplicate dates.
func New(index []time.Time) (*Frame, error) {
	idx := append([]time.Time(nil), index...)
	sort.Slice(idx, func(i, j int) bool { return idx[i].Before(idx[j]) })
	for i := 1; i < len(idx); i++ {
		if idx[i].Equal(idx[i-1]) {
			return nil, fmt.Errorf("duplicate index date %s", idx[i].Format("2006-01-02"))
		}
	}
	return &Frame{index: idx, cols: make(map[string][]float64)}, nil
}

func (f *Frame) Len() int { return len(f.index) }

func (f *Frame) Index() []time.Time { return append([]time.Time(nil), f.index...) }

func (f *Frame) Columns() []string { return append([]string(nil), f.names...) }

func (f *Frame) Column(name string) ([]float64, bool) {
	col, ok := f.cols[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), col...), true
}

// Value returns the cell at row i, NaN when the column is absent.
func (f *Frame) Value(i int, name string) float64 {
	col, ok := f.cols[name]
	if !ok || i < 0 || i >= len(col) {
		return math.NaN()
	}
	return col[i]
}

// Set adds or replaces a column. Values must match the index length.
func (f *Frame) Set(name string, values []float64) error {
	if len(values) != len(f.index) {
		return fmt.Errorf("column %q has %d values, index has %d", name, len(values), len(f.index))
	}
	if _, exists := f.cols[name]; !exists {
		f.names = append(f.names, name)
	}
	f.cols[name] = append([]float64(nil), values...)
	return nil
}

// Row returns row i in column order.
func (f *Frame) Row(i int) []float64 {
	row := make([]float64, len(f.names))
	for j, name := range f.names {
		row[j] = f.cols[name][i]
	}
	return row
}

func (f *Frame) Rows() [][]float64 {
	rows := make([][]float64, len(f.index))
	for i := range rows {
		rows[i] = f.Row(i)
	}
	return rows
}

// Missing lists the names not present as columns, in the given order.
func (f *Frame) Missing(names []string) []string {
	var missing []string
	for _, name := range names {
		if _, ok := f.cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Select returns a frame with exactly names, in that order.
func (f *Frame) Select(names []string) (*Frame, error) {
	if missing := f.Missing(names); len(missing) > 0 {
		return nil, fmt.Errorf("columns not found: %v", missing)
	}
	out := &Frame{index: f.Index(), cols: make(map[string][]float64, len(names))}
	for _, name := range names {
		if err := out.Set(name, f.cols[name]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Rename maps every column name through fn. Two columns collapsing to the
// same name is an error.
func (f *Frame) Rename(fn func(string) string) (*Frame, error) {
	out := &Frame{index: f.Index(), cols: make(map[string][]float64, len(f.names))}
	for _, name := range f.names {
		renamed := fn(name)
		if _, dup := out.cols[renamed]; dup {
			return nil, fmt.Errorf("rename %q: column %q already exists", name, renamed)
		}
		if err := out.Set(renamed, f.cols[name]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Tail keeps the last n rows.
func (f *Frame) Tail(n int) *Frame {
	start := len(f.index) - n
	if start < 0 {
		start = 0
	}
	return f.slice(start, len(f.index))
}

func (f *Frame) slice(from, to int) *Frame {
	out := &Frame{
		index: append([]time.Time(nil), f.index[from:to]...),
		names: append([]string(nil), f.names...),
		cols:  make(map[string][]float64, len(f.names)),
	}
	for _, name := range f.names {
		out.cols[name] = append([]float64(nil), f.cols[name][from:to]...)
	}
	return out
}

// FFill replaces each missing cell with the last non-missing value above it
// in the same column. Leading missing cells stay missing.
func (f *Frame) FFill() *Frame {
	out := f.slice(0, len(f.index))
	for _, name := range out.names {
		col := out.cols[name]
		last := math.NaN()
		for i, v := range col {
			if math.IsNaN(v) {
				col[i] = last
				continue
			}
			last = v
		}
	}
	return out
}

// ReplaceInf turns positive and negative infinity into NaN.
func (f *Frame) ReplaceInf() *Frame {
	out := f.slice(0, len(f.index))
	for _, name := range out.names {
		col := out.cols[name]
		for i, v := range col {
			if math.IsInf(v, 0) {
				col[i] = math.NaN()
			}
		}
	}
	return out
}

// DropIncomplete removes rows holding any missing cell and reports the
// dropped dates.
func (f *Frame) DropIncomplete() (*Frame, []time.Time) {
	var keep []int
	var dropped []time.Time
	for i, date := range f.index {
		complete := true
		for _, name := range f.names {
			if math.IsNaN(f.cols[name][i]) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, i)
		} else {
			dropped = append(dropped, date)
		}
	}
	out := &Frame{
		index: make([]time.Time, 0, len(keep)),
		names: append([]string(nil), f.names...),
		cols:  make(map[string][]float64, len(f.names)),
	}
	for _, i := range keep {
		out.index = append(out.index, f.index[i])
	}
	for _, name := range f.names {
		col := make([]float64, 0, len(keep))
		for _, i := range keep {
			col = append(col, f.cols[name][i])
		}
		out.cols[name] = col
	}
	return out, dropped
}

// Concat joins frames column-wise on the union of their dates. Cells a frame
// has no row for are missing. Column names must be unique across frames.
func Concat(frames ...*Frame) (*Frame, error) {
	seen := make(map[int64]time.Time)
	for _, fr := range frames {
		for _, d := range fr.index {
			seen[d.UnixNano()] = d
		}
	}
	index := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		index = append(index, d)
	}
	out, err := New(index)
	if err != nil {
		return nil, err
	}
	pos := make(map[int64]int, len(out.index))
	for i, d := range out.index {
		pos[d.UnixNano()] = i
	}
	for _, fr := range frames {
		for _, name := range fr.names {
			if _, dup := out.cols[name]; dup {
				return nil, fmt.Errorf("concat: duplicate column %q", name)
			}
			col := make([]float64, len(out.index))
			for i := range col {
				col[i] = math.NaN()
			}
			for i, d := range fr.index {
				col[pos[d.UnixNano()]] = fr.cols[name][i]
			}
			out.names = append(out.names, name)
			out.cols[name] = col
		}
	}
	return out, nil
}
