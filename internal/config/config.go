package config

import (
	"flag"

	"github.com/Rehann2/mckinsey-methane-hackathon/internal/overlay"
)

type Config struct {
	ImagePath  string
	MatrixPath string
	InputSize  int
	LayerName  string
	ClassIndex int
	OutputPath string
	Resolution int
	Alpha      float64
	Seed       uint64
}

func Parse() *Config {
	cfg := &Config{}

	// define flags
	flag.StringVar(&cfg.ImagePath, "image", "", "input image file (PNG or JPEG)")
	flag.StringVar(&cfg.MatrixPath, "matrix", "", "input image as a whitespace-separated text matrix")
	flag.IntVar(&cfg.InputSize, "input-size", 64, "side length the input image is resized to")
	flag.StringVar(&cfg.LayerName, "layer", "conv_last", "convolutional layer to explain")
	flag.IntVar(&cfg.ClassIndex, "class", -1, "class index to explain (-1 for the top prediction)")
	flag.StringVar(&cfg.OutputPath, "out", overlay.DefaultOutputPath, "output figure path")
	flag.IntVar(&cfg.Resolution, "resolution", overlay.DefaultResolution, "heatmap overlay resolution")
	flag.Float64Var(&cfg.Alpha, "alpha", overlay.DefaultAlpha, "heatmap overlay opacity")
	flag.Uint64Var(&cfg.Seed, "seed", 42, "seed for the demo model weights")
	flag.Parse()

	return cfg
}
