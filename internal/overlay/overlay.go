// Package overlay renders a class activation heatmap on top of the
// source image and saves the composite as a PNG.
package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/nfnt/resize"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// The heatmap is rescaled to 64×64 and blended at 40% opacity, and the
// figure is written to a fixed path under data/, unless the caller
// overrides these through options.
const (
	DefaultOutputPath = "data/save_fig/fig_saved.png"
	DefaultResolution = 64
	DefaultAlpha      = 0.4

	paletteColors = 12
	canvasSize    = vg.Length(300)
)

// ErrEmptyHeatmap is returned when the heatmap has no elements to
// resize.
var ErrEmptyHeatmap = errors.New("overlay: empty heatmap")

// Option adjusts a render.
type Option func(*options)

type options struct {
	outputPath string
	resolution int
	alpha      float64
}

// WithOutputPath overrides the destination file. The parent directory
// must already exist.
func WithOutputPath(path string) Option {
	return func(o *options) { o.outputPath = path }
}

// WithResolution overrides the square size the heatmap is resized to
// before compositing.
func WithResolution(n int) Option {
	return func(o *options) { o.resolution = n }
}

// WithAlpha overrides the heatmap layer opacity.
func WithAlpha(a float64) Option {
	return func(o *options) { o.alpha = a }
}

// Render draws img as a grayscale base layer, resizes heatmap to the
// configured square resolution, composites it semi-transparently with a
// rainbow palette over the same extent, and writes the figure as a PNG.
// The existing file at the output path is overwritten. The returned
// plot can be drawn again by the caller.
//
// img and heatmap need not have matching dimensions; both layers are
// stretched over the unit square.
func Render(img, heatmap *mat.Dense, opts ...Option) (*plot.Plot, error) {
	o := options{
		outputPath: DefaultOutputPath,
		resolution: DefaultResolution,
		alpha:      DefaultAlpha,
	}
	for _, opt := range opts {
		opt(&o)
	}

	resized, err := Resize(heatmap, o.resolution, o.resolution)
	if err != nil {
		return nil, err
	}

	p := plot.New()
	p.X.Padding = 0
	p.Y.Padding = 0

	base := plotter.NewHeatMap(unitGrid{img}, grayPalette{paletteColors})
	p.Add(base)

	pal := palette.Rainbow(paletteColors, palette.Blue, palette.Red, 1, 1, o.alpha)
	hm := plotter.NewHeatMap(unitGrid{resized}, pal)
	hm.Min = 0
	hm.Max = 1
	p.Add(hm)

	if err := writePNG(p, o.outputPath); err != nil {
		return nil, err
	}
	return p, nil
}

// Resize rescales m to rows×cols with bilinear interpolation. The
// matrix rides through a 16-bit grayscale image, so values are
// quantized to 1/65535 of their range on the way.
func Resize(m *mat.Dense, rows, cols int) (*mat.Dense, error) {
	mr, mc := m.Dims()
	if mr == 0 || mc == 0 {
		return nil, ErrEmptyHeatmap
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("overlay: invalid target size %dx%d", rows, cols)
	}

	min := mat.Min(m)
	span := mat.Max(m) - min

	carrier := image.NewGray16(image.Rect(0, 0, mc, mr))
	if span > 0 {
		for r := 0; r < mr; r++ {
			for c := 0; c < mc; c++ {
				v := (m.At(r, c) - min) / span
				carrier.SetGray16(c, r, color.Gray16{Y: uint16(math.Round(v * 65535))})
			}
		}
	}

	scaled := resize.Resize(uint(cols), uint(rows), carrier, resize.Bilinear)

	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g := color.Gray16Model.Convert(scaled.At(c, r)).(color.Gray16)
			out.Set(r, c, min+span*float64(g.Y)/65535)
		}
	}
	return out, nil
}

func writePNG(p *plot.Plot, path string) error {
	img := vgimg.New(canvasSize, canvasSize)
	dc := draw.New(img)
	p.Draw(dc)

	w, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("overlay: %w", err)
	}
	defer w.Close()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("overlay: write png: %w", err)
	}
	return nil
}

// unitGrid stretches a matrix over the unit square, so layers of
// different dimensions composite over the same extent. Matrix row 0 is
// drawn at the top, the usual image orientation.
type unitGrid struct {
	m *mat.Dense
}

func (g unitGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g unitGrid) Z(c, r int) float64 {
	rows, _ := g.m.Dims()
	return g.m.At(rows-1-r, c)
}

func (g unitGrid) X(c int) float64 {
	_, cols := g.m.Dims()
	return (float64(c) + 0.5) / float64(cols)
}

func (g unitGrid) Y(r int) float64 {
	rows, _ := g.m.Dims()
	return (float64(r) + 0.5) / float64(rows)
}

// grayPalette is an opaque grayscale palette for the base image layer.
type grayPalette struct {
	n int
}

func (p grayPalette) Colors() []color.Color {
	colors := make([]color.Color, p.n)
	for i := range colors {
		v := uint8(i * 255 / (p.n - 1))
		colors[i] = color.NRGBA{R: v, G: v, B: v, A: 255}
	}
	return colors
}
