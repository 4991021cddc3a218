// Package compliance computes compliance results from a required-document
// spec and a checklist. Evaluation is pure; callers fetch both inputs.
package compliance

import (
	"math"

	"github.com/formwatch/formwatch/internal/domain"
)

// Evaluate matches required spec entries against checklist items by the
// exact (formId, jurisdiction, agency) triple and buckets the completion
// percentage. An empty required set is vacuously compliant.
func Evaluate(spec []domain.RequiredDocumentSpec, checklist *domain.Checklist) domain.ComplianceResult {
	completedByKey := map[domain.DocumentKey]bool{}
	if checklist != nil {
		for _, item := range checklist.Items {
			if item.Status == domain.ItemCompleted {
				completedByKey[item.Key] = true
			}
		}
	}

	required := 0
	completedRequired := 0
	for _, entry := range spec {
		if !entry.Required {
			continue
		}
		required++
		if completedByKey[entry.Key] {
			completedRequired++
		}
	}

	percentage := 100.0
	if required > 0 {
		percentage = math.Round(float64(completedRequired)/float64(required)*10000) / 100
	}

	return domain.ComplianceResult{
		RequiredCount:  required,
		CompletedCount: completedRequired,
		Percentage:     percentage,
		Status:         statusFor(percentage),
	}
}

func statusFor(percentage float64) domain.ComplianceStatus {
	switch {
	case percentage >= 100:
		return domain.Compliant
	case percentage >= 75:
		return domain.PartiallyCompliant
	default:
		return domain.NonCompliant
	}
}
