package engines

import (
	"context"
	"fmt"
	"time"

	"arcanum/internal/models"
)

// RegisterDemo installs two tiny deterministic calculators so warm jobs and
// manual testing have something to call in development. Real engines live
// outside this module and register themselves the same way.
func RegisterDemo(r *Registry) {
	r.Register("numerology", demoNumerology)
	r.Register("biorhythm", demoBiorhythm)
}

func demoNumerology(_ context.Context, input map[string]any) (*models.EngineResult, error) {
	name, _ := input["fullName"].(string)
	if name == "" {
		return &models.EngineResult{Success: false, Error: "fullName is required"}, nil
	}

	sum := 0
	for _, r := range name {
		if r >= 'a' && r <= 'z' {
			sum += int(r-'a') + 1
		}
		if r >= 'A' && r <= 'Z' {
			sum += int(r-'A') + 1
		}
	}
	for sum > 9 {
		sum = sum/10 + sum%10
	}

	confidence := 0.95
	return &models.EngineResult{
		Success:    true,
		Data:       map[string]any{"lifePath": sum},
		Confidence: &confidence,
	}, nil
}

func demoBiorhythm(_ context.Context, input map[string]any) (*models.EngineResult, error) {
	birthDate, _ := input["birthDate"].(string)
	born, err := time.Parse("2006-01-02", birthDate)
	if err != nil {
		return &models.EngineResult{Success: false, Error: fmt.Sprintf("invalid birthDate: %v", err)}, nil
	}

	days := int(time.Since(born).Hours() / 24)
	confidence := 0.9
	return &models.EngineResult{
		Success: true,
		Data: map[string]any{
			"daysAlive":       days,
			"physicalDay":     days % 23,
			"emotionalDay":    days % 28,
			"intellectualDay": days % 33,
		},
		Confidence: &confidence,
	}, nil
}
