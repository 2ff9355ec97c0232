package convnet

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/Rehann2/mckinsey-methane-hackathon/pkg/tensor"
)

// Layer is one named stage of the network. Forward maps an input tensor
// to an output tensor. Backward takes the cached forward input and
// output together with the gradient of a scalar with respect to the
// output, and returns the gradient with respect to the input. The model
// is frozen, so no parameter gradients are produced.
type Layer interface {
	Name() string
	Forward(in *tensor.Dense) (*tensor.Dense, error)
	Backward(in, out, grad *tensor.Dense) (*tensor.Dense, error)
}

// Conv2D is a stride-1 convolution with zero padding that preserves the
// spatial dimensions of its input.
type Conv2D struct {
	name        string
	inChannels  int
	outChannels int
	size        int
	kernels     [][]*mat.Dense // [out][in], each size×size
	bias        []float64
}

// NewConv2D builds a convolution layer from its kernel bank. kernels is
// indexed [output channel][input channel]; every kernel must be square,
// of the same odd size. bias holds one value per output channel.
func NewConv2D(name string, kernels [][]*mat.Dense, bias []float64) (*Conv2D, error) {
	if len(kernels) == 0 || len(kernels[0]) == 0 {
		return nil, fmt.Errorf("convnet: conv layer %q has no kernels", name)
	}
	outChannels := len(kernels)
	inChannels := len(kernels[0])
	size, cols := kernels[0][0].Dims()
	if size != cols || size%2 == 0 {
		return nil, fmt.Errorf("convnet: conv layer %q kernels must be square with odd size, got %dx%d", name, size, cols)
	}
	for _, row := range kernels {
		if len(row) != inChannels {
			return nil, fmt.Errorf("convnet: conv layer %q has a ragged kernel bank", name)
		}
		for _, k := range row {
			r, c := k.Dims()
			if r != size || c != size {
				return nil, fmt.Errorf("convnet: conv layer %q has mixed kernel sizes", name)
			}
		}
	}
	if len(bias) != outChannels {
		return nil, fmt.Errorf("convnet: conv layer %q bias length %d does not match %d output channels", name, len(bias), outChannels)
	}
	return &Conv2D{
		name:        name,
		inChannels:  inChannels,
		outChannels: outChannels,
		size:        size,
		kernels:     kernels,
		bias:        bias,
	}, nil
}

func (l *Conv2D) Name() string { return l.name }

func (l *Conv2D) Forward(in *tensor.Dense) (*tensor.Dense, error) {
	if in.Channels != l.inChannels {
		return nil, fmt.Errorf("%w: layer %q expects %d channels, got %d",
			ErrShapeMismatch, l.name, l.inChannels, in.Channels)
	}
	pad := l.size / 2
	out := tensor.New(in.Batch, in.Rows, in.Cols, l.outChannels)
	for b := 0; b < in.Batch; b++ {
		for oc := 0; oc < l.outChannels; oc++ {
			for r := 0; r < in.Rows; r++ {
				for c := 0; c < in.Cols; c++ {
					sum := l.bias[oc]
					for ic := 0; ic < l.inChannels; ic++ {
						k := l.kernels[oc][ic]
						for kr := 0; kr < l.size; kr++ {
							ir := r + kr - pad
							if ir < 0 || ir >= in.Rows {
								continue
							}
							for kc := 0; kc < l.size; kc++ {
								jc := c + kc - pad
								if jc < 0 || jc >= in.Cols {
									continue
								}
								sum += in.At(b, ir, jc, ic) * k.At(kr, kc)
							}
						}
					}
					out.Set(b, r, c, oc, sum)
				}
			}
		}
	}
	return out, nil
}

func (l *Conv2D) Backward(in, out, grad *tensor.Dense) (*tensor.Dense, error) {
	if !grad.SameShape(out) {
		return nil, fmt.Errorf("%w: layer %q gradient shape", ErrShapeMismatch, l.name)
	}
	pad := l.size / 2
	gin := tensor.New(in.Batch, in.Rows, in.Cols, in.Channels)
	for b := 0; b < in.Batch; b++ {
		for oc := 0; oc < l.outChannels; oc++ {
			for r := 0; r < in.Rows; r++ {
				for c := 0; c < in.Cols; c++ {
					g := grad.At(b, r, c, oc)
					if g == 0 {
						continue
					}
					for ic := 0; ic < l.inChannels; ic++ {
						k := l.kernels[oc][ic]
						for kr := 0; kr < l.size; kr++ {
							ir := r + kr - pad
							if ir < 0 || ir >= in.Rows {
								continue
							}
							for kc := 0; kc < l.size; kc++ {
								jc := c + kc - pad
								if jc < 0 || jc >= in.Cols {
									continue
								}
								gin.Set(b, ir, jc, ic, gin.At(b, ir, jc, ic)+g*k.At(kr, kc))
							}
						}
					}
				}
			}
		}
	}
	return gin, nil
}

// ReLU clamps negative values to zero elementwise.
type ReLU struct {
	name string
}

func NewReLU(name string) *ReLU { return &ReLU{name: name} }

func (l *ReLU) Name() string { return l.name }

func (l *ReLU) Forward(in *tensor.Dense) (*tensor.Dense, error) {
	out := in.Clone()
	data := out.Data()
	for i, v := range data {
		if v < 0 {
			data[i] = 0
		}
	}
	return out, nil
}

func (l *ReLU) Backward(in, out, grad *tensor.Dense) (*tensor.Dense, error) {
	if !grad.SameShape(out) {
		return nil, fmt.Errorf("%w: layer %q gradient shape", ErrShapeMismatch, l.name)
	}
	gin := grad.Clone()
	gdata := gin.Data()
	for i, v := range in.Data() {
		if v <= 0 {
			gdata[i] = 0
		}
	}
	return gin, nil
}

// MaxPool2D downsamples each channel plane by taking the maximum over
// non-overlapping size×size windows. Trailing rows and columns that do
// not fill a whole window are dropped.
type MaxPool2D struct {
	name string
	size int
}

func NewMaxPool2D(name string, size int) *MaxPool2D {
	if size < 2 {
		panic("convnet: pool size must be at least 2")
	}
	return &MaxPool2D{name: name, size: size}
}

func (l *MaxPool2D) Name() string { return l.name }

func (l *MaxPool2D) Forward(in *tensor.Dense) (*tensor.Dense, error) {
	rows := in.Rows / l.size
	cols := in.Cols / l.size
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: layer %q input %dx%d smaller than pool size %d",
			ErrShapeMismatch, l.name, in.Rows, in.Cols, l.size)
	}
	out := tensor.New(in.Batch, rows, cols, in.Channels)
	for b := 0; b < in.Batch; b++ {
		for ch := 0; ch < in.Channels; ch++ {
			for r := 0; r < rows; r++ {
				for c := 0; c < cols; c++ {
					max := math.Inf(-1)
					for wr := 0; wr < l.size; wr++ {
						for wc := 0; wc < l.size; wc++ {
							v := in.At(b, r*l.size+wr, c*l.size+wc, ch)
							if v > max {
								max = v
							}
						}
					}
					out.Set(b, r, c, ch, max)
				}
			}
		}
	}
	return out, nil
}

func (l *MaxPool2D) Backward(in, out, grad *tensor.Dense) (*tensor.Dense, error) {
	if !grad.SameShape(out) {
		return nil, fmt.Errorf("%w: layer %q gradient shape", ErrShapeMismatch, l.name)
	}
	gin := tensor.New(in.Batch, in.Rows, in.Cols, in.Channels)
	for b := 0; b < in.Batch; b++ {
		for ch := 0; ch < in.Channels; ch++ {
			for r := 0; r < out.Rows; r++ {
				for c := 0; c < out.Cols; c++ {
					// Route the gradient to the first maximum in the window,
					// matching the forward tie-break.
					bestR, bestC := r*l.size, c*l.size
					max := math.Inf(-1)
					for wr := 0; wr < l.size; wr++ {
						for wc := 0; wc < l.size; wc++ {
							v := in.At(b, r*l.size+wr, c*l.size+wc, ch)
							if v > max {
								max = v
								bestR = r*l.size + wr
								bestC = c*l.size + wc
							}
						}
					}
					gin.Set(b, bestR, bestC, ch, gin.At(b, bestR, bestC, ch)+grad.At(b, r, c, ch))
				}
			}
		}
	}
	return gin, nil
}

// Flatten reshapes a spatial tensor into a flat 1×1×(rows*cols*channels)
// feature vector per batch element.
type Flatten struct {
	name string
}

func NewFlatten(name string) *Flatten { return &Flatten{name: name} }

func (l *Flatten) Name() string { return l.name }

func (l *Flatten) Forward(in *tensor.Dense) (*tensor.Dense, error) {
	out := in.Clone()
	out.Channels = in.Rows * in.Cols * in.Channels
	out.Rows = 1
	out.Cols = 1
	return out, nil
}

func (l *Flatten) Backward(in, out, grad *tensor.Dense) (*tensor.Dense, error) {
	if !grad.SameShape(out) {
		return nil, fmt.Errorf("%w: layer %q gradient shape", ErrShapeMismatch, l.name)
	}
	gin := grad.Clone()
	gin.Rows = in.Rows
	gin.Cols = in.Cols
	gin.Channels = in.Channels
	return gin, nil
}

// Dense is a fully connected layer over flat feature vectors.
type Dense struct {
	name    string
	weights *mat.Dense // out×in
	bias    []float64
}

// NewDense builds a fully connected layer from an out×in weight matrix
// and one bias per output.
func NewDense(name string, weights *mat.Dense, bias []float64) (*Dense, error) {
	out, _ := weights.Dims()
	if len(bias) != out {
		return nil, fmt.Errorf("convnet: dense layer %q bias length %d does not match %d outputs", name, len(bias), out)
	}
	return &Dense{name: name, weights: weights, bias: bias}, nil
}

func (l *Dense) Name() string { return l.name }

func (l *Dense) Forward(in *tensor.Dense) (*tensor.Dense, error) {
	outDim, inDim := l.weights.Dims()
	if in.Rows != 1 || in.Cols != 1 || in.Channels != inDim {
		return nil, fmt.Errorf("%w: layer %q expects a flat input of %d features",
			ErrShapeMismatch, l.name, inDim)
	}
	out := tensor.New(in.Batch, 1, 1, outDim)
	for b := 0; b < in.Batch; b++ {
		x := mat.NewVecDense(inDim, in.Data()[b*inDim:(b+1)*inDim])
		var y mat.VecDense
		y.MulVec(l.weights, x)
		for i := 0; i < outDim; i++ {
			out.Set(b, 0, 0, i, y.AtVec(i)+l.bias[i])
		}
	}
	return out, nil
}

func (l *Dense) Backward(in, out, grad *tensor.Dense) (*tensor.Dense, error) {
	if !grad.SameShape(out) {
		return nil, fmt.Errorf("%w: layer %q gradient shape", ErrShapeMismatch, l.name)
	}
	outDim, inDim := l.weights.Dims()
	gin := tensor.New(in.Batch, 1, 1, inDim)
	for b := 0; b < in.Batch; b++ {
		g := mat.NewVecDense(outDim, grad.Data()[b*outDim:(b+1)*outDim])
		var gx mat.VecDense
		gx.MulVec(l.weights.T(), g)
		for i := 0; i < inDim; i++ {
			gin.Set(b, 0, 0, i, gx.AtVec(i))
		}
	}
	return gin, nil
}

// Softmax normalizes a flat vector into a probability distribution.
type Softmax struct {
	name string
}

func NewSoftmax(name string) *Softmax { return &Softmax{name: name} }

func (l *Softmax) Name() string { return l.name }

func (l *Softmax) Forward(in *tensor.Dense) (*tensor.Dense, error) {
	if in.Rows != 1 || in.Cols != 1 {
		return nil, fmt.Errorf("%w: layer %q expects a flat input", ErrShapeMismatch, l.name)
	}
	out := in.Clone()
	n := in.Channels
	data := out.Data()
	for b := 0; b < in.Batch; b++ {
		row := data[b*n : (b+1)*n]
		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		sum := 0.0
		for i, v := range row {
			row[i] = math.Exp(v - max)
			sum += row[i]
		}
		for i := range row {
			row[i] /= sum
		}
	}
	return out, nil
}

func (l *Softmax) Backward(in, out, grad *tensor.Dense) (*tensor.Dense, error) {
	if !grad.SameShape(out) {
		return nil, fmt.Errorf("%w: layer %q gradient shape", ErrShapeMismatch, l.name)
	}
	n := out.Channels
	gin := tensor.New(in.Batch, 1, 1, n)
	for b := 0; b < in.Batch; b++ {
		dot := 0.0
		for i := 0; i < n; i++ {
			dot += grad.At(b, 0, 0, i) * out.At(b, 0, 0, i)
		}
		for i := 0; i < n; i++ {
			y := out.At(b, 0, 0, i)
			gin.Set(b, 0, 0, i, y*(grad.At(b, 0, 0, i)-dot))
		}
	}
	return gin, nil
}
