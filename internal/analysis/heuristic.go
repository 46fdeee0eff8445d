package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"carbon-scribe/restoration-portal/internal/projects"
	"carbon-scribe/restoration-portal/pkg/random"
)

// VegetationKeywords raise the detection probability when found in the
// after-image name.
var VegetationKeywords = []string{"green", "vegetation", "forest", "tree", "plant", "grass", "after", "restored"}

// Detection thresholds: a draw above the threshold counts as vegetation.
const (
	KeywordThreshold   = 0.2
	NoKeywordThreshold = 0.7
)

// Draw ranges for detected vegetation.
const (
	MinCarbon      = 120
	MaxCarbon      = 300
	MinBiomass     = 20.0
	BiomassSpread  = 50.0
	MinConfidence  = 85.0
	ConfidenceSpan = 10.0
)

// Classifier produces an analysis result for a project.
type Classifier interface {
	Classify(ctx context.Context, project projects.Project) (projects.AnalysisResult, error)
}

// HeuristicClassifier is a randomized stand-in for image analysis. It only
// looks at the after-image name and never fails.
type HeuristicClassifier struct {
	rnd random.Source
	now func() time.Time
}

func NewHeuristicClassifier(rnd random.Source, now func() time.Time) *HeuristicClassifier {
	if rnd == nil {
		rnd = random.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &HeuristicClassifier{rnd: rnd, now: now}
}

// HasVegetationKeyword reports whether name contains a vegetation keyword,
// ignoring case.
func HasVegetationKeyword(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range VegetationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (c *HeuristicClassifier) Classify(ctx context.Context, project projects.Project) (projects.AnalysisResult, error) {
	var name string
	if project.AfterImage != nil {
		name = project.AfterImage.Name
	}

	threshold := NoKeywordThreshold
	if HasVegetationKeyword(name) {
		threshold = KeywordThreshold
	}

	result := projects.AnalysisResult{
		HasVegetation:   c.rnd.Float64() > threshold,
		BiomassDetected: decimal.Zero,
		AfterImageName:  name,
	}
	if result.HasVegetation {
		result.CarbonRestored = int64(MinCarbon + c.rnd.IntN(MaxCarbon-MinCarbon+1))
		result.BiomassDetected = decimal.NewFromFloat(c.rnd.Float64()*BiomassSpread + MinBiomass).Round(1)
	}
	result.Confidence = decimal.NewFromFloat(c.rnd.Float64()*ConfidenceSpan + MinConfidence).Round(1)
	result.Timestamp = c.now().UTC()

	return result, nil
}
