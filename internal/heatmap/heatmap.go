package heatmap

import (
	"bytes"
	"image"
	"image/color"
	"math/rand"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"spinevision-backend/internal/shared/telemetry"
)

// CanvasSize is the square resolution heatmaps are rendered at.
const CanvasSize = 512

const blurSigma = 15

// Generator produces attention-overlay heatmaps for X-ray images. It is
// pure bytes-in/bytes-out; persisting the output is the caller's job.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New constructs a Generator.
func New() *Generator {
	return &Generator{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Render produces a PNG heatmap for the given image, overlaying 2-4 soft
// elliptical attention regions concentrated toward the central third.
// It never fails: any internal error yields nil, which callers treat as
// "no heatmap produced".
func (g *Generator) Render(imageBytes []byte) (out []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			telemetry.Warn("heatmap.render.panic", map[string]any{"error": rec})
			out = nil
		}
	}()

	src, err := imaging.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		telemetry.Warn("heatmap.render.skipped", map[string]any{"err": err.Error()})
		return nil
	}

	base := imaging.Resize(src, CanvasSize, CanvasSize, imaging.Lanczos)
	overlay := image.NewNRGBA(image.Rect(0, 0, CanvasSize, CanvasSize))

	for _, region := range g.attentionRegions() {
		drawGradientEllipse(overlay, region)
	}

	blurred := imaging.Blur(overlay, blurSigma)
	composited := imaging.Overlay(base, blurred, image.Point{}, 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, composited, imaging.PNG); err != nil {
		telemetry.Warn("heatmap.render.skipped", map[string]any{"err": err.Error()})
		return nil
	}
	return buf.Bytes()
}

type ellipse struct {
	cx, cy        int
	width, height int
}

// attentionRegions picks 2-4 random ellipses inside the central third of
// the canvas, the spine's usual location on an upright X-ray.
func (g *Generator) attentionRegions() []ellipse {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 2 + g.rng.Intn(3)
	regions := make([]ellipse, 0, count)
	for i := 0; i < count; i++ {
		regions = append(regions, ellipse{
			cx:     180 + g.rng.Intn(153),
			cy:     100 + g.rng.Intn(313),
			width:  40 + g.rng.Intn(61),
			height: 60 + g.rng.Intn(61),
		})
	}
	return regions
}

// drawGradientEllipse paints concentric ellipses fading from opaque red
// at the center through yellow toward transparent at the rim.
func drawGradientEllipse(dst *image.NRGBA, e ellipse) {
	for i := e.width; i > 0; i -= 2 {
		frac := float64(i) / float64(e.width)
		c := color.NRGBA{
			R: 255,
			G: uint8(100 * (1 - frac)),
			B: 0,
			A: uint8(80 * frac),
		}
		rx := i / 2
		ry := (e.height * i / e.width) / 2
		fillEllipse(dst, e.cx, e.cy, rx, ry, c)
	}
}

func fillEllipse(dst *image.NRGBA, cx, cy, rx, ry int, c color.NRGBA) {
	if rx <= 0 || ry <= 0 {
		return
	}
	bounds := dst.Bounds()
	for y := cy - ry; y <= cy+ry; y++ {
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		for x := cx - rx; x <= cx+rx; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X {
				continue
			}
			dx := float64(x-cx) / float64(rx)
			dy := float64(y-cy) / float64(ry)
			if dx*dx+dy*dy <= 1.0 {
				dst.SetNRGBA(x, y, c)
			}
		}
	}
}
