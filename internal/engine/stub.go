package engine

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// Stub is a placeholder Engine that produces randomized but
// realistically-shaped findings. Its preprocessing and output contract
// (input normalization, finding ordering, classification thresholds) are
// the load-bearing parts; the randomness is not.
type Stub struct {
	modelVersion string

	mu  sync.Mutex
	rng *rand.Rand
}

var _ Engine = (*Stub)(nil)

// NewStub constructs a stub engine tagged with the given model version.
func NewStub(modelVersion string) *Stub {
	return &Stub{
		modelVersion: modelVersion,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Analyze decodes and normalizes the image, then generates 3-5 findings
// from the condition catalog, ordered by probability descending.
func (s *Stub) Analyze(ctx context.Context, imageBytes []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if _, err := Preprocess(imageBytes); err != nil {
		return Result{}, err
	}

	findings := s.sampleFindings()
	overall, confidence := Classify(findings)

	return Result{
		Overall:         overall,
		ConfidenceScore: confidence,
		Findings:        findings,
		ModelVersion:    s.modelVersion,
		ProcessedAt:     time.Now().UTC(),
	}, nil
}

// Preprocess decodes the image, converts it to grayscale, resizes it to
// InputSize x InputSize and scales intensities to [0,1]. The returned
// slice is row-major with InputSize*InputSize entries.
func Preprocess(imageBytes []byte) ([]float64, error) {
	img, err := imaging.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}

	gray := imaging.Grayscale(img)
	resized := imaging.Resize(gray, InputSize, InputSize, imaging.Lanczos)

	pixels := make([]float64, 0, InputSize*InputSize)
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			r, _, _, _ := resized.At(x, y).RGBA()
			pixels = append(pixels, float64(r>>8)/255.0)
		}
	}
	return pixels, nil
}

func (s *Stub) sampleFindings() []Finding {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 3 + s.rng.Intn(3)
	order := s.rng.Perm(len(spineConditions))

	findings := make([]Finding, 0, count)
	for _, idx := range order[:count] {
		cond := spineConditions[idx]
		prob := round2(cond.lo + s.rng.Float64()*(cond.hi-cond.lo))
		findings = append(findings, Finding{
			Label:       cond.label,
			Description: cond.description,
			Probability: prob,
		})
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Probability > findings[j].Probability
	})
	return findings
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
