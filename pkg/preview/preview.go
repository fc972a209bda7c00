// Package preview renders node outputs to small image swatches by
// evaluating their expressions on the CPU, one sample per pixel. Rows are
// rendered concurrently. The renderer is read-only and never mutates the
// graph.
package preview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/tsl"
)

// Sampler evaluates an expression for one sample. tsl.Eval is the default.
type Sampler func(e tsl.Expr, env tsl.Env) (tsl.Value, error)

// Options controls swatch size and the uniform inputs.
type Options struct {
	Width   int
	Height  int
	Time    float64
	Sampler Sampler
	Logger  hclog.Logger
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 64
	}
	if o.Height <= 0 {
		o.Height = 64
	}
	if o.Sampler == nil {
		o.Sampler = tsl.Eval
	}
	if o.Logger == nil {
		o.Logger = hclog.NewNullLogger()
	}
	return o
}

// Swatch is the rendering of one node output.
type Swatch struct {
	Node   graph.Node
	Output string // output key
	Image  *image.NRGBA
}

// Name returns "var.output", the label used for file names and listings.
func (s *Swatch) Name() string {
	return graph.VarName(s.Node) + "." + s.Output
}

// envAt maps pixel (x, y) onto a unit plane facing +Z. UV has its origin at
// the bottom left; position spans -0.5..0.5.
func envAt(x, y, w, h int, t float64) tsl.Env {
	u := (float64(x) + 0.5) / float64(w)
	v := 1 - (float64(y)+0.5)/float64(h)
	return tsl.Env{
		UV:       v2.Vec{X: u, Y: v},
		Time:     t,
		Position: v3.Vec{X: u - 0.5, Y: v - 0.5},
		Normal:   v3.Vec{Z: 1},
	}
}

func channel(x float64) uint8 {
	if math.IsNaN(x) {
		return 0
	}
	return uint8(math.Round(math.Max(0, math.Min(1, x)) * 255))
}

// Render samples e once per pixel. Evaluation errors abort the render; an
// expression that cannot run on the CPU reports tsl.ErrUnsupported.
func Render(ctx context.Context, e tsl.Expr, o Options) (*image.NRGBA, error) {
	o = o.withDefaults()
	img := image.NewNRGBA(image.Rect(0, 0, o.Width, o.Height))

	g, ctx := errgroup.WithContext(ctx)
	for y := 0; y < o.Height; y++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for x := 0; x < o.Width; x++ {
				val, err := o.Sampler(e, envAt(x, y, o.Width, o.Height, o.Time))
				if err != nil {
					return fmt.Errorf("pixel (%d, %d): %w", x, y, err)
				}
				c := val.RGBA()
				img.SetNRGBA(x, y, color.NRGBA{R: channel(c[0]), G: channel(c[1]), B: channel(c[2]), A: channel(c[3])})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return img, nil
}

// RenderNode renders every output of n from its current value.
func RenderNode(ctx context.Context, n graph.Node, o Options) ([]*Swatch, error) {
	o = o.withDefaults()
	var swatches []*Swatch
	for _, out := range n.Base().Outputs() {
		v := out.Value()
		if v == nil {
			continue
		}
		img, err := Render(ctx, v(), o)
		if err != nil {
			return nil, fmt.Errorf("preview %s.%s: %w", graph.VarName(n), out.Key, err)
		}
		swatches = append(swatches, &Swatch{Node: n, Output: out.Key, Image: img})
	}
	return swatches, nil
}

// RenderGraph renders every visible node. Outputs that need the GPU
// (textures, matrices) are skipped and logged; any other failure stops the
// walk.
func RenderGraph(ctx context.Context, g *graph.Graph, o Options) ([]*Swatch, error) {
	if g == nil {
		return nil, nil
	}
	o = o.withDefaults()

	var swatches []*Swatch
	for _, n := range g.Nodes() {
		for _, out := range n.Base().Outputs() {
			v := out.Value()
			if v == nil {
				continue
			}
			img, err := Render(ctx, v(), o)
			if errors.Is(err, tsl.ErrUnsupported) {
				o.Logger.Debug("no CPU preview", "node", graph.VarName(n), "output", out.Key, "error", err)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("preview %s.%s: %w", graph.VarName(n), out.Key, err)
			}
			swatches = append(swatches, &Swatch{Node: n, Output: out.Key, Image: img})
		}
	}
	return swatches, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
