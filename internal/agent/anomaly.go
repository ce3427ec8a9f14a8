package agent

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

const (
	minAnomalySamples = 3
	zThreshold        = 2.0
)

type alertPattern struct {
	alertType string
	action    string
}

var alertPatterns = map[string]alertPattern{
	"error_count": {
		alertType: "high_error_rate",
		action:    "Review recent errors on the account and consider reaching out first.",
	},
	"login_failures": {
		alertType: "suspicious_login_activity",
		action:    "Check recent login attempts for unauthorized access and offer a password reset.",
	},
	"latency_ms": {
		alertType: "performance_degradation",
		action:    "The customer may be seeing slow service. Check backend latency for the account.",
	},
	"api_calls": {
		alertType: "unusual_usage_pattern",
		action:    "Usage is far from the account's normal pattern. Review for issues or plan limits.",
	},
}

// LocalAnomaly flags usage log rows whose largest per-field z-score exceeds 2.
type LocalAnomaly struct {
	newID func() string
}

func NewLocalAnomaly() *LocalAnomaly {
	return &LocalAnomaly{newID: uuid.NewString}
}

func (a *LocalAnomaly) Invoke(ctx context.Context, in AnomalyInput) (AnomalyOutput, error) {
	if err := ctx.Err(); err != nil {
		return AnomalyOutput{}, err
	}

	var alerts []domain.ProactiveAlert
	for _, an := range DetectAnomalies(in.UsageLogs) {
		p, ok := alertPatterns[an.Field]
		if !ok {
			p = alertPattern{
				alertType: "general_anomaly",
				action:    fmt.Sprintf("Unusual %s on account %s. Review usage patterns.", an.Field, in.AccountID),
			}
		}
		alerts = append(alerts, domain.ProactiveAlert{
			AlertID:  a.newID(),
			Type:     p.alertType,
			Severity: SeverityForScore(an.Score),
			Description: fmt.Sprintf("%s is %.1f standard deviations from normal in usage sample %d",
				strings.ReplaceAll(an.Field, "_", " "), math.Abs(an.Score), an.Index),
			SuggestedAction: p.action,
			AnomalyScore:    an.Score,
		})
	}
	return AnomalyOutput{Alerts: alerts}, nil
}

// Anomaly is one flagged usage log row.
type Anomaly struct {
	Index int
	Field string  // field with the largest deviation
	Score float64 // negated z-score; more negative is more anomalous
}

// DetectAnomalies runs a per-field z-score scan over the usage logs.
// Fewer than three samples never produce an anomaly.
func DetectAnomalies(logs []map[string]float64) []Anomaly {
	if len(logs) < minAnomalySamples {
		return nil
	}

	fieldSet := map[string]bool{}
	for _, row := range logs {
		for k := range row {
			fieldSet[k] = true
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for k := range fieldSet {
		fields = append(fields, k)
	}
	slices.Sort(fields)
	if len(fields) == 0 {
		return nil
	}

	n := float64(len(logs))
	mean := make([]float64, len(fields))
	std := make([]float64, len(fields))
	for j, f := range fields {
		for _, row := range logs {
			mean[j] += row[f]
		}
		mean[j] /= n
		for _, row := range logs {
			d := row[f] - mean[j]
			std[j] += d * d
		}
		std[j] = math.Sqrt(std[j]/n) + 1e-9
	}

	var out []Anomaly
	for i, row := range logs {
		maxZ, maxField := 0.0, ""
		for j, f := range fields {
			z := math.Abs((row[f] - mean[j]) / std[j])
			if z > maxZ {
				maxZ, maxField = z, f
			}
		}
		if maxZ > zThreshold {
			out = append(out, Anomaly{Index: i, Field: maxField, Score: math.Round(-maxZ*10000) / 10000})
		}
	}
	return out
}

// SeverityForScore grades an anomaly score.
func SeverityForScore(score float64) domain.Severity {
	switch {
	case score < -2:
		return domain.SeverityCritical
	case score < -1:
		return domain.SeverityHigh
	case score < -0.5:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}
