package engine

import (
	"context"
	"errors"
	"time"
)

// Finding is one detected condition with its probability.
type Finding struct {
	Label       string  `json:"label"`
	Description string  `json:"description"`
	Probability float64 `json:"probability"`
}

// Result is the outcome of analyzing one image. Findings are ordered by
// probability descending; consumers rely on that ordering and do not re-sort.
type Result struct {
	Overall         string    `json:"overall"`
	ConfidenceScore float64   `json:"confidenceScore"`
	Findings        []Finding `json:"findings"`
	ModelVersion    string    `json:"modelVersion"`
	ProcessedAt     time.Time `json:"processedAt"`
}

// ErrUnreadableImage indicates the input could not be decoded. It is
// terminal: callers must fail the upload rather than retry.
var ErrUnreadableImage = errors.New("unreadable image")

// Engine analyzes X-ray image bytes. Implementations are stateless per
// call beyond one-time initialization and safe for concurrent use.
type Engine interface {
	Analyze(ctx context.Context, imageBytes []byte) (Result, error)
}

const (
	// InputSize is the square resolution images are normalized to before
	// inference. Changing it is a versioned contract change: a real model
	// plugs in against this shape.
	InputSize = 224

	classAbnormalHigh     = "Abnormal - High Confidence"
	classAbnormalModerate = "Abnormal - Moderate Confidence"
	classPossiblyAbnormal = "Possibly Abnormal"
	classNormal           = "Normal"
)

// Classify derives the overall classification and confidence from an
// ordered finding set. With no findings the image is considered normal
// at fixed confidence.
func Classify(findings []Finding) (string, float64) {
	if len(findings) == 0 {
		return classNormal, 0.95
	}

	maxProb := findings[0].Probability
	for _, f := range findings[1:] {
		if f.Probability > maxProb {
			maxProb = f.Probability
		}
	}

	switch {
	case maxProb >= 0.7:
		return classAbnormalHigh, round2(maxProb)
	case maxProb >= 0.5:
		return classAbnormalModerate, round2(maxProb)
	case maxProb >= 0.3:
		return classPossiblyAbnormal, round2(maxProb)
	default:
		return classNormal, round2(1.0 - maxProb)
	}
}
