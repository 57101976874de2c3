package rules

// Dataset is the numeric observation matrix a rule learner consumes.
// Rows share their feature slices with the dataset they were taken from.
type Dataset struct {
	Features []string
	X        [][]float64
	Y        []bool
}

// NewDataset creates an empty dataset over the named features.
func NewDataset(features []string) *Dataset {
	return &Dataset{Features: features}
}

// Add appends one observation. len(x) must equal len(Features).
func (d *Dataset) Add(x []float64, y bool) {
	d.X = append(d.X, x)
	d.Y = append(d.Y, y)
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Y)
}

// Positives returns the number of rows with a positive outcome.
func (d *Dataset) Positives() int {
	n := 0
	for _, y := range d.Y {
		if y {
			n++
		}
	}
	return n
}

// Degenerate reports whether the dataset is empty or holds a single class.
func (d *Dataset) Degenerate() bool {
	p := d.Positives()
	return p == 0 || p == d.Len()
}

// Index returns the column of feature, or -1.
func (d *Dataset) Index(feature string) int {
	for i, f := range d.Features {
		if f == feature {
			return i
		}
	}
	return -1
}

// Subset returns the given rows as a new dataset.
func (d *Dataset) Subset(rows []uint32) *Dataset {
	out := &Dataset{
		Features: d.Features,
		X:        make([][]float64, len(rows)),
		Y:        make([]bool, len(rows)),
	}
	for i, r := range rows {
		out.X[i] = d.X[r]
		out.Y[i] = d.Y[r]
	}
	return out
}
