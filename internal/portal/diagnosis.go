package portal

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Skufu/diagportal/internal/upstream"
)

var ErrNoSymptoms = errors.New("no symptoms selected")

const (
	NoSymptomsMessage      = "Please select at least one symptom"
	DiagnosisFailedMessage = "An error occurred while processing your request."
)

// RequireSymptoms guards diagnosis submission.
func RequireSymptoms(sel Selection) error {
	if len(sel) == 0 {
		return ErrNoSymptoms
	}
	return nil
}

// FormatPercent renders a 0-1 ratio as a percentage with one decimal.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatProbability renders a probability the way the backend sent it,
// using the shortest decimal form (0.5, not 0.500000).
func FormatProbability(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

type DiagnosisView struct {
	Disease    string
	Confidence string
	Others     []ConditionView
}

type ConditionView struct {
	Disease     string
	Probability string
}

// NewDiagnosisView trusts the backend ordering: the first possible condition
// is the primary diagnosis and is not repeated in Others.
func NewDiagnosisView(d *upstream.Diagnosis) DiagnosisView {
	v := DiagnosisView{
		Disease:    d.PredictedDisease,
		Confidence: FormatPercent(d.Confidence),
	}
	if len(d.PossibleConditions) > 1 {
		for _, c := range d.PossibleConditions[1:] {
			v.Others = append(v.Others, ConditionView{
				Disease:     c.Disease,
				Probability: FormatProbability(c.Probability),
			})
		}
	}
	return v
}
