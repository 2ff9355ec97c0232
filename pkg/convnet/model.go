// Package convnet implements a small frozen convolutional classifier
// with named layers. Beyond plain inference it can capture the
// activations of any named layer during the forward pass and compute
// the reverse-mode gradient of a class score with respect to those
// activations, which is the capability class-activation mapping needs.
package convnet

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/Rehann2/mckinsey-methane-hackathon/pkg/tensor"
)

// Model is an ordered stack of named layers. The weights are fixed at
// construction; the model never mutates itself during inference or
// gradient computation.
type Model struct {
	layers []Layer
}

// New builds a model from an ordered layer stack. Layer names must be
// non-empty and unique.
func New(layers ...Layer) (*Model, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("convnet: model with no layers")
	}
	seen := make(map[string]bool, len(layers))
	for _, l := range layers {
		if l.Name() == "" {
			return nil, fmt.Errorf("convnet: layer with empty name")
		}
		if seen[l.Name()] {
			return nil, fmt.Errorf("convnet: duplicate layer name %q", l.Name())
		}
		seen[l.Name()] = true
	}
	return &Model{layers: layers}, nil
}

// LayerIndex returns the position of the named layer, or
// ErrLayerNotFound.
func (m *Model) LayerIndex(name string) (int, error) {
	for i, l := range m.layers {
		if l.Name() == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrLayerNotFound, name)
}

// Forward runs plain inference and returns the output vector as a
// batch×classes matrix.
func (m *Model) Forward(input *tensor.Dense) (*mat.Dense, error) {
	rec, err := m.Record(input, m.layers[len(m.layers)-1].Name())
	if err != nil {
		return nil, err
	}
	return rec.Predictions(), nil
}

// Record runs one forward pass, retaining every intermediate activation
// so that gradients with respect to the named layer's output can be
// taken afterwards. This is the dual-output predictor: the recording
// exposes both the named layer's activation and the final predictions.
func (m *Model) Record(input *tensor.Dense, layerName string) (*Recording, error) {
	idx, err := m.LayerIndex(layerName)
	if err != nil {
		return nil, err
	}
	rec := &Recording{
		model:    m,
		layerIdx: idx,
		inputs:   make([]*tensor.Dense, len(m.layers)),
		outputs:  make([]*tensor.Dense, len(m.layers)),
	}
	cur := input
	for i, l := range m.layers {
		rec.inputs[i] = cur
		out, err := l.Forward(cur)
		if err != nil {
			return nil, fmt.Errorf("convnet: forward through %q: %w", l.Name(), err)
		}
		rec.outputs[i] = out
		cur = out
	}
	final := rec.outputs[len(m.layers)-1]
	if final.Rows != 1 || final.Cols != 1 {
		return nil, fmt.Errorf("%w: final layer output is not a flat vector", ErrShapeMismatch)
	}
	return rec, nil
}

// Recording holds the activations of one forward pass.
type Recording struct {
	model    *Model
	layerIdx int
	inputs   []*tensor.Dense
	outputs  []*tensor.Dense
}

// Activation returns the recorded output of the named layer.
func (rec *Recording) Activation() *tensor.Dense {
	return rec.outputs[rec.layerIdx]
}

// Predictions returns the final output as a batch×classes matrix.
func (rec *Recording) Predictions() *mat.Dense {
	final := rec.outputs[len(rec.outputs)-1]
	data := make([]float64, final.Len())
	copy(data, final.Data())
	return mat.NewDense(final.Batch, final.Channels, data)
}

// Gradient back-propagates the score of one output class through the
// layers above the recorded layer and returns the gradient of that
// score with respect to the recorded activation. The seed is one-hot at
// classIndex for every batch element.
func (rec *Recording) Gradient(classIndex int) (*tensor.Dense, error) {
	final := rec.outputs[len(rec.outputs)-1]
	if classIndex < 0 || classIndex >= final.Channels {
		return nil, fmt.Errorf("%w: %d with %d classes", ErrClassIndex, classIndex, final.Channels)
	}
	grad := tensor.New(final.Batch, 1, 1, final.Channels)
	for b := 0; b < final.Batch; b++ {
		grad.Set(b, 0, 0, classIndex, 1)
	}
	for i := len(rec.model.layers) - 1; i > rec.layerIdx; i-- {
		l := rec.model.layers[i]
		gin, err := l.Backward(rec.inputs[i], rec.outputs[i], grad)
		if err != nil {
			return nil, fmt.Errorf("convnet: backward through %q: %w", l.Name(), err)
		}
		grad = gin
	}
	return grad, nil
}
