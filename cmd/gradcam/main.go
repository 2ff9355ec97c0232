// Command gradcam computes a Grad-CAM heatmap for one image against the
// demo plume classifier and writes the overlay figure.
package main

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"

	"github.com/nfnt/resize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/Rehann2/mckinsey-methane-hackathon/internal/config"
	"github.com/Rehann2/mckinsey-methane-hackathon/internal/gradcam"
	"github.com/Rehann2/mckinsey-methane-hackathon/internal/overlay"
	"github.com/Rehann2/mckinsey-methane-hackathon/pkg/convnet"
	"github.com/Rehann2/mckinsey-methane-hackathon/pkg/readmatrix"
	"github.com/Rehann2/mckinsey-methane-hackathon/pkg/tensor"
	"github.com/Rehann2/mckinsey-methane-hackathon/pkg/weightinit"
)

var classes = []string{"no_plume", "plume"}

func main() {
	cfg := config.Parse()
	log.Println("Starting gradcam...")

	img, err := loadInput(cfg)
	if err != nil {
		log.Fatal("Error loading input image:", err)
	}

	inputSize, _ := img.Dims()
	model, err := buildModel(cfg.Seed, inputSize)
	if err != nil {
		log.Fatal("Error building model:", err)
	}

	input := tensor.FromMatrix(img)
	preds, err := model.Forward(input)
	if err != nil {
		log.Fatal("Error running inference:", err)
	}
	top := floats.MaxIdx(preds.RawRowView(0))
	log.Printf("Predicted class: %s (%.3f)", classes[top], preds.At(0, top))

	var opts []gradcam.Option
	if cfg.ClassIndex >= 0 {
		opts = append(opts, gradcam.WithClassIndex(cfg.ClassIndex))
	}
	heatmap, err := gradcam.ComputeHeatmap(input, model, cfg.LayerName, opts...)
	if err != nil {
		log.Fatal("Error computing heatmap:", err)
	}

	_, err = overlay.Render(img, heatmap,
		overlay.WithOutputPath(cfg.OutputPath),
		overlay.WithResolution(cfg.Resolution),
		overlay.WithAlpha(cfg.Alpha),
	)
	if err != nil {
		log.Fatal("Error rendering overlay:", err)
	}
	log.Printf("Figure saved to %s", cfg.OutputPath)
}

// loadInput reads the source image either from a PNG/JPEG file, resized
// and converted to grayscale, or from a text matrix.
func loadInput(cfg *config.Config) (*mat.Dense, error) {
	switch {
	case cfg.MatrixPath != "":
		return readmatrix.ReadMatrix(cfg.MatrixPath)
	case cfg.ImagePath != "":
		return loadGrayscale(cfg.ImagePath, cfg.InputSize)
	default:
		log.Fatal("One of -image or -matrix is required")
		return nil, nil
	}
}

func loadGrayscale(path string, size int) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	scaled := resize.Resize(uint(size), uint(size), src, resize.Lanczos3)

	m := mat.NewDense(size, size, nil)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := scaled.At(x, y).RGBA()
			lum := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			m.Set(y, x, lum/65535)
		}
	}
	return m, nil
}

// buildModel assembles the demo plume classifier with reproducible
// random weights. The layer the heatmap explains by default is the
// second convolution, named conv_last.
func buildModel(seed uint64, inputSize int) (*convnet.Model, error) {
	gen := weightinit.New(0, 0.1, -0.3, 0.3, seed)

	conv1, err := convnet.NewConv2D("conv1", kernelBank(gen, 1, 8, 3), gen.RandN(8))
	if err != nil {
		return nil, err
	}
	convLast, err := convnet.NewConv2D("conv_last", kernelBank(gen, 8, 8, 3), gen.RandN(8))
	if err != nil {
		return nil, err
	}

	// Two pool stages quarter the input resolution before the head.
	flatDim := (inputSize / 4) * (inputSize / 4) * 8
	dense, err := convnet.NewDense("dense",
		mat.NewDense(len(classes), flatDim, gen.RandN(len(classes)*flatDim)),
		gen.RandN(len(classes)))
	if err != nil {
		return nil, err
	}

	return convnet.New(
		conv1,
		convnet.NewReLU("relu1"),
		convnet.NewMaxPool2D("pool1", 2),
		convLast,
		convnet.NewReLU("relu2"),
		convnet.NewMaxPool2D("pool2", 2),
		convnet.NewFlatten("flatten"),
		dense,
		convnet.NewSoftmax("softmax"),
	)
}

func kernelBank(gen *weightinit.Generator, in, out, size int) [][]*mat.Dense {
	bank := make([][]*mat.Dense, out)
	for oc := range bank {
		bank[oc] = make([]*mat.Dense, in)
		for ic := range bank[oc] {
			bank[oc][ic] = mat.NewDense(size, size, gen.RandN(size*size))
		}
	}
	return bank
}
