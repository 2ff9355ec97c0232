// Package tensor provides a minimal dense NHWC tensor used to move
// image batches and layer activations through the network.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Dense is a batch × rows × cols × channels tensor of float64 values
// stored row-major in NHWC order.
type Dense struct {
	Batch    int
	Rows     int
	Cols     int
	Channels int

	data []float64
}

// New allocates a zero-filled tensor with the given dimensions.
func New(batch, rows, cols, channels int) *Dense {
	if batch <= 0 || rows <= 0 || cols <= 0 || channels <= 0 {
		panic("tensor: non-positive dimension")
	}
	return &Dense{
		Batch:    batch,
		Rows:     rows,
		Cols:     cols,
		Channels: channels,
		data:     make([]float64, batch*rows*cols*channels),
	}
}

// NewFrom wraps the given backing slice. The slice is used directly,
// not copied.
func NewFrom(batch, rows, cols, channels int, data []float64) (*Dense, error) {
	want := batch * rows * cols * channels
	if len(data) != want {
		return nil, fmt.Errorf("tensor: data length %d does not match %dx%dx%dx%d (= %d)",
			len(data), batch, rows, cols, channels, want)
	}
	return &Dense{
		Batch:    batch,
		Rows:     rows,
		Cols:     cols,
		Channels: channels,
		data:     data,
	}, nil
}

func (t *Dense) index(b, r, c, ch int) int {
	return ((b*t.Rows+r)*t.Cols+c)*t.Channels + ch
}

// At returns the element at batch b, row r, column c, channel ch.
func (t *Dense) At(b, r, c, ch int) float64 {
	return t.data[t.index(b, r, c, ch)]
}

// Set stores v at batch b, row r, column c, channel ch.
func (t *Dense) Set(b, r, c, ch int, v float64) {
	t.data[t.index(b, r, c, ch)] = v
}

// Data returns the backing slice in NHWC order.
func (t *Dense) Data() []float64 {
	return t.data
}

// Len returns the total number of elements.
func (t *Dense) Len() int {
	return len(t.data)
}

// SameShape reports whether u has identical dimensions.
func (t *Dense) SameShape(u *Dense) bool {
	return t.Batch == u.Batch && t.Rows == u.Rows &&
		t.Cols == u.Cols && t.Channels == u.Channels
}

// Channel copies one channel plane of one batch element into a matrix.
func (t *Dense) Channel(b, ch int) *mat.Dense {
	m := mat.NewDense(t.Rows, t.Cols, nil)
	for r := 0; r < t.Rows; r++ {
		for c := 0; c < t.Cols; c++ {
			m.Set(r, c, t.At(b, r, c, ch))
		}
	}
	return m
}

// SetChannel copies the matrix into one channel plane of one batch element.
func (t *Dense) SetChannel(b, ch int, m *mat.Dense) {
	rows, cols := m.Dims()
	if rows != t.Rows || cols != t.Cols {
		panic("tensor: channel dimension mismatch")
	}
	for r := 0; r < t.Rows; r++ {
		for c := 0; c < t.Cols; c++ {
			t.Set(b, r, c, ch, m.At(r, c))
		}
	}
}

// Clone returns a deep copy.
func (t *Dense) Clone() *Dense {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return &Dense{
		Batch:    t.Batch,
		Rows:     t.Rows,
		Cols:     t.Cols,
		Channels: t.Channels,
		data:     data,
	}
}

// Zero resets every element to zero.
func (t *Dense) Zero() {
	for i := range t.data {
		t.data[i] = 0
	}
}

// FromMatrix builds a single-batch, single-channel tensor from a matrix,
// the shape a grayscale image takes on entry to the network.
func FromMatrix(m *mat.Dense) *Dense {
	rows, cols := m.Dims()
	t := New(1, rows, cols, 1)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			t.Set(0, r, c, 0, m.At(r, c))
		}
	}
	return t
}
