package service

import "github.com/noah-isme/learnify-api/internal/models"

// CalculateProgress returns the completion percentage in [0, 100].
// A course without countable units yields 0. The value is not rounded.
func CalculateProgress(completedCount, totalUnits int) float64 {
	if totalUnits <= 0 || completedCount <= 0 {
		return 0
	}
	progress := float64(completedCount) / float64(totalUnits) * 100
	if progress > models.ProgressComplete {
		return models.ProgressComplete
	}
	return progress
}
