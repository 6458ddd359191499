package model

import (
	"fmt"
	"math"
	"sort"

	"github.com/petems/live-classify/internal/classify"
)

// Rank pairs scores with labels and sorts them by descending confidence.
// Scores without a label are named "class N".
func Rank(scores []float32, labels []string) classify.Results {
	results := make(classify.Results, len(scores))
	for i, s := range scores {
		name := fmt.Sprintf("class %d", i)
		if i < len(labels) {
			name = labels[i]
		}
		results[i] = classify.Prediction{Label: name, Confidence: clamp(float64(s))}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results
}

// AtLeast keeps the predictions whose confidence reaches threshold.
func AtLeast(results classify.Results, threshold float64) classify.Results {
	kept := results[:0:0]
	for _, r := range results {
		if r.Confidence >= threshold {
			kept = append(kept, r)
		}
	}
	return kept
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
