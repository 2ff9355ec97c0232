// Package gradcam computes gradient-weighted class activation maps.
// The heatmap answers which spatial positions of a convolutional
// layer's output drove the score of one predicted class.
package gradcam

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/Rehann2/mckinsey-methane-hackathon/pkg/convnet"
	"github.com/Rehann2/mckinsey-methane-hackathon/pkg/tensor"
)

// Option adjusts a heatmap computation.
type Option func(*options)

type options struct {
	classIndex int
}

// WithClassIndex selects the class whose score is explained. The
// default explains the top predicted class of the first batch element.
func WithClassIndex(i int) Option {
	return func(o *options) { o.classIndex = i }
}

// ComputeHeatmap runs input through the model, takes the gradient of
// the selected class score with respect to the named layer's
// activations, pools it into per-channel importance weights and returns
// the weighted channel sum as a normalized heatmap.
//
// The result matches the spatial dimensions of the named layer's
// output. Values are clamped at zero and divided by the global maximum,
// so they lie in [0, 1]. When the clamped map is identically zero the
// division is left unguarded and every element of the result is NaN;
// callers that need to distinguish a blank explanation from a valid one
// must check for that.
func ComputeHeatmap(input *tensor.Dense, model *convnet.Model, layerName string, opts ...Option) (*mat.Dense, error) {
	o := options{classIndex: -1}
	for _, opt := range opts {
		opt(&o)
	}

	rec, err := model.Record(input, layerName)
	if err != nil {
		return nil, fmt.Errorf("gradcam: %w", err)
	}

	preds := rec.Predictions()
	classIndex := o.classIndex
	if classIndex < 0 {
		// First maximum wins on ties, matching floats.MaxIdx.
		classIndex = floats.MaxIdx(preds.RawRowView(0))
	}

	grads, err := rec.Gradient(classIndex)
	if err != nil {
		return nil, fmt.Errorf("gradcam: %w", err)
	}

	pooled := poolGradients(grads)
	act := rec.Activation()
	heatmap := weightedChannelSum(act, pooled)

	// Clamp negatives, then normalize by the global maximum. 0/0 yields
	// NaN here when the clamped map has no positive support.
	rows, cols := heatmap.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if heatmap.At(r, c) < 0 {
				heatmap.Set(r, c, 0)
			}
		}
	}
	max := mat.Max(heatmap)
	heatmap.Scale(1/max, heatmap)
	return heatmap, nil
}

// poolGradients averages the gradient over the batch and both spatial
// axes, one mean per channel.
func poolGradients(grads *tensor.Dense) *mat.VecDense {
	pooled := mat.NewVecDense(grads.Channels, nil)
	n := float64(grads.Batch * grads.Rows * grads.Cols)
	for ch := 0; ch < grads.Channels; ch++ {
		sum := 0.0
		for b := 0; b < grads.Batch; b++ {
			for r := 0; r < grads.Rows; r++ {
				for c := 0; c < grads.Cols; c++ {
					sum += grads.At(b, r, c, ch)
				}
			}
		}
		pooled.SetVec(ch, sum/n)
	}
	return pooled
}

// weightedChannelSum multiplies the first batch element's activation,
// viewed as a (rows*cols)×channels matrix, by the pooled importance
// vector and reshapes the product back to rows×cols.
func weightedChannelSum(act *tensor.Dense, pooled *mat.VecDense) *mat.Dense {
	flat := mat.NewDense(act.Rows*act.Cols, act.Channels, nil)
	for r := 0; r < act.Rows; r++ {
		for c := 0; c < act.Cols; c++ {
			for ch := 0; ch < act.Channels; ch++ {
				flat.Set(r*act.Cols+c, ch, act.At(0, r, c, ch))
			}
		}
	}
	var prod mat.VecDense
	prod.MulVec(flat, pooled)

	heatmap := mat.NewDense(act.Rows, act.Cols, nil)
	for r := 0; r < act.Rows; r++ {
		for c := 0; c < act.Cols; c++ {
			heatmap.Set(r, c, prod.AtVec(r*act.Cols+c))
		}
	}
	return heatmap
}
