package gradcam

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/Rehann2/mckinsey-methane-hackathon/pkg/convnet"
	"github.com/Rehann2/mckinsey-methane-hackathon/pkg/tensor"
)

const tolerance = 1e-9

func equals(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

// scaledIdentityKernels builds a 1→channels kernel bank where output
// channel oc is the input scaled by oc+1. The activation of such a
// layer is proportional to the input in every channel, which makes the
// expected heatmap computable by hand.
func scaledIdentityKernels(channels int) [][]*mat.Dense {
	bank := make([][]*mat.Dense, channels)
	for oc := range bank {
		k := mat.NewDense(3, 3, nil)
		k.Set(1, 1, float64(oc+1))
		bank[oc] = []*mat.Dense{k}
	}
	return bank
}

// headModel stacks conv_last (1→8 scaled identities over a 4×4 input)
// with a linear head whose two weight rows are given per-class
// constants. No softmax, so class scores are raw sums.
func headModel(t *testing.T, class0Weight, class1Weight float64) *convnet.Model {
	t.Helper()

	conv, err := convnet.NewConv2D("conv_last", scaledIdentityKernels(8), make([]float64, 8))
	if err != nil {
		t.Fatal(err)
	}
	flatDim := 4 * 4 * 8
	weights := mat.NewDense(2, flatDim, nil)
	for j := 0; j < flatDim; j++ {
		weights.Set(0, j, class0Weight)
		weights.Set(1, j, class1Weight)
	}
	dense, err := convnet.NewDense("dense", weights, []float64{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	m, err := convnet.New(conv, convnet.NewFlatten("flatten"), dense)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func positiveInput() *tensor.Dense {
	in, _ := tensor.NewFrom(1, 4, 4, 1, []float64{
		0.1, 0.5, 0.3, 0.9,
		0.7, 0.2, 1.0, 0.4,
		0.6, 0.8, 0.1, 0.3,
		0.2, 0.4, 0.5, 0.7,
	})
	return in
}

// With uniform class-0 weights, the gradient of the class score with
// respect to conv_last is 1.0 everywhere, the pooled importance vector
// is uniform, and the raw heatmap is proportional to the per-position
// sum over all 8 channels. The channels are scaled copies of the input,
// so the normalized heatmap equals the input divided by its maximum.
func TestUniformGradientHeatmapProportionalToChannelSum(t *testing.T) {
	m := headModel(t, 1, 0)
	in := positiveInput()

	heatmap, err := ComputeHeatmap(in, m, "conv_last")
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := heatmap.Dims()
	if rows != 4 || cols != 4 {
		t.Fatalf("heatmap %dx%d, want 4x4", rows, cols)
	}

	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			want := in.At(0, r, c, 0) / 1.0 // max input element is 1.0
			if got := heatmap.At(r, c); !equals(got, want) {
				t.Errorf("heatmap[%d,%d] = %v, want %v", r, c, got, want)
			}
		}
	}
}

func TestHeatmapValuesInUnitInterval(t *testing.T) {
	m := headModel(t, 1, 0)
	heatmap, err := ComputeHeatmap(positiveInput(), m, "conv_last")
	if err != nil {
		t.Fatal(err)
	}
	if min := mat.Min(heatmap); min < 0 {
		t.Errorf("minimum %v below 0", min)
	}
	if max := mat.Max(heatmap); max > 1 || !equals(max, 1) {
		t.Errorf("maximum %v, want exactly 1", max)
	}
}

func TestHeatmapIdempotent(t *testing.T) {
	m := headModel(t, 1, 0)
	first, err := ComputeHeatmap(positiveInput(), m, "conv_last")
	if err != nil {
		t.Fatal(err)
	}
	second, err := ComputeHeatmap(positiveInput(), m, "conv_last")
	if err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(first, second) {
		t.Error("repeated computation with frozen weights differs")
	}
}

// The heatmap tracks the explained layer's spatial dimensions, not the
// input image's. With a pooling stage before conv_last, an 8×8 input
// yields a 4×4 heatmap.
func TestHeatmapMatchesActivationDims(t *testing.T) {
	conv1, err := convnet.NewConv2D("conv1", scaledIdentityKernels(2), make([]float64, 2))
	if err != nil {
		t.Fatal(err)
	}
	k := mat.NewDense(3, 3, nil)
	k.Set(1, 1, 1)
	convLast, err := convnet.NewConv2D("conv_last",
		[][]*mat.Dense{{k, k}}, []float64{0})
	if err != nil {
		t.Fatal(err)
	}
	flatDim := 4 * 4 * 1
	weights := mat.NewDense(2, flatDim, nil)
	for j := 0; j < flatDim; j++ {
		weights.Set(0, j, 1)
	}
	dense, err := convnet.NewDense("dense", weights, []float64{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	m, err := convnet.New(
		conv1,
		convnet.NewMaxPool2D("pool", 2),
		convLast,
		convnet.NewFlatten("flatten"),
		dense,
	)
	if err != nil {
		t.Fatal(err)
	}

	in := tensor.New(1, 8, 8, 1)
	for i := range in.Data() {
		in.Data()[i] = float64(i%7) / 7
	}
	heatmap, err := ComputeHeatmap(in, m, "conv_last")
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := heatmap.Dims()
	if rows != 4 || cols != 4 {
		t.Errorf("heatmap %dx%d, want 4x4 (the activation dims after pooling)", rows, cols)
	}
}

// An all-zero head makes every class score constant, the gradient
// identically zero, and the normalization a 0/0. The division is
// deliberately unguarded, so the result is NaN everywhere rather than
// an error.
func TestZeroGradientProducesNaN(t *testing.T) {
	m := headModel(t, 0, 0)
	heatmap, err := ComputeHeatmap(positiveInput(), m, "conv_last")
	if err != nil {
		t.Fatalf("expected NaN heatmap, got error %v", err)
	}
	rows, cols := heatmap.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !math.IsNaN(heatmap.At(r, c)) {
				t.Fatalf("heatmap[%d,%d] = %v, want NaN", r, c, heatmap.At(r, c))
			}
		}
	}
}

// A negative class weight drives the whole raw heatmap negative; after
// clamping, normalization again hits the unguarded 0/0.
func TestExplicitClassIndexIsHonored(t *testing.T) {
	m := headModel(t, 1, -1)
	in := positiveInput()

	byDefault, err := ComputeHeatmap(in, m, "conv_last")
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(mat.Max(byDefault)) {
		t.Fatal("default class heatmap should be valid")
	}

	explained, err := ComputeHeatmap(in, m, "conv_last", WithClassIndex(1))
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(explained.At(0, 0)) {
		t.Error("class 1 heatmap should be NaN after clamping a negative map")
	}
}

func TestMissingLayerError(t *testing.T) {
	m := headModel(t, 1, 0)
	_, err := ComputeHeatmap(positiveInput(), m, "no_such_layer")
	if !errors.Is(err, convnet.ErrLayerNotFound) {
		t.Errorf("error = %v, want ErrLayerNotFound", err)
	}
}

func TestBadClassIndexError(t *testing.T) {
	m := headModel(t, 1, 0)
	_, err := ComputeHeatmap(positiveInput(), m, "conv_last", WithClassIndex(5))
	if !errors.Is(err, convnet.ErrClassIndex) {
		t.Errorf("error = %v, want ErrClassIndex", err)
	}
}
