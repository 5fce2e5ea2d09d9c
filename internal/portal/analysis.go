package portal

import (
	"fmt"
	"strings"

	"github.com/Skufu/diagportal/internal/upstream"
)

const (
	NothingToShow   = "Nothing to show for this section."
	EmptyReport     = "No information could be extracted from the report. Please ensure the image is clear and contains readable text."
	NoScanFindings  = "No significant findings detected in the scan. Please consult a healthcare professional for a complete evaluation."
	DefaultScanNote = "Analysis has detected the following findings:"
)

// SeverityTier maps a severity string to a visual tier.
func SeverityTier(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "high":
		return "danger"
	case "medium":
		return "warning"
	case "low":
		return "success"
	default:
		return "info"
	}
}

// ScanAnalysis is the single shape every scan response is rendered from.
type ScanAnalysis struct {
	Summary         ScanSummary
	Findings        []Finding
	Normal          []string
	Abnormal        []string
	Recommendations []string
}

type ScanSummary struct {
	Note            string
	MainFinding     string
	Confidence      string
	SeverityLevel   string
	KeyObservations []string
}

func (s ScanSummary) Empty() bool {
	return s.Note == "" && s.MainFinding == "" && s.Confidence == "" &&
		s.SeverityLevel == "" && len(s.KeyObservations) == 0
}

// Finding is one detected condition.
type Finding struct {
	Condition       string
	Severity        string
	Tier            string
	Confidence      string
	Description     string
	Recommendations []string
}

// HasFindings reports whether the findings section has anything to list.
func (a ScanAnalysis) HasFindings() bool {
	return len(a.Findings) > 0 || len(a.Normal) > 0 || len(a.Abnormal) > 0
}

func (a ScanAnalysis) Empty() bool {
	return a.Summary.Empty() && !a.HasFindings() && len(a.Recommendations) == 0
}

func newFinding(condition, severity, confidence string) Finding {
	return Finding{
		Condition:  condition,
		Severity:   strings.ToUpper(severity),
		Tier:       SeverityTier(severity),
		Confidence: confidence,
	}
}

func ratioText(v float64) string {
	if v == 0 {
		return ""
	}
	return FormatPercent(v)
}

// NormalizeScan folds either scan payload into a ScanAnalysis.
func NormalizeScan(r *upstream.ScanResult) ScanAnalysis {
	var a ScanAnalysis
	if r == nil {
		return a
	}

	if p := r.Predictions; p != nil {
		if len(p.Predictions) > 0 {
			a.Summary.Note = p.Message
			if a.Summary.Note == "" {
				a.Summary.Note = DefaultScanNote
			}
		}
		for _, pred := range p.Predictions {
			f := newFinding(pred.Condition, pred.Severity, "")
			if pred.Confidence != 0 {
				// analyze-scan confidences are already percentages
				f.Confidence = fmt.Sprintf("%.1f%%", pred.Confidence)
			}
			f.Description = pred.Description
			f.Recommendations = pred.Recommendations
			a.Findings = append(a.Findings, f)
		}
		return a
	}

	d := r.Upload
	if d == nil {
		return a
	}
	if s := d.AnalysisSummary; s != nil {
		a.Summary = ScanSummary{
			MainFinding:     s.MainFinding,
			Confidence:      s.Confidence.String(),
			SeverityLevel:   s.SeverityLevel.String(),
			KeyObservations: s.KeyObservations,
		}
	}
	if f := d.Findings; f != nil {
		if f.PrimaryCondition != "" || f.Severity != "" {
			a.Findings = append(a.Findings, newFinding(f.PrimaryCondition, f.Severity, ratioText(f.ConfidenceScore)))
		}
		a.Normal = f.NormalStructures
		a.Abnormal = f.Abnormalities
	}
	if ind := d.DiseaseIndicators; ind != nil {
		for _, c := range ind.PotentialConditions {
			a.Findings = append(a.Findings, newFinding(c, ind.Severity, ratioText(ind.ConfidenceScore)))
		}
	}
	a.Recommendations = d.Recommendations
	return a
}

// ReportAnalysis is the single shape every report response is rendered from.
type ReportAnalysis struct {
	Condition        string
	Vitals           []Vital
	History          []string
	Diagnosis        []string
	Symptoms         []string
	Medications      []string
	ImmediateActions []string
	LongTermGoals    []string
	FollowUp         []string
	Recommendations  []string
}

type Vital struct {
	Label string
	Value string
}

func (r ReportAnalysis) HasPatientSummary() bool {
	return r.Condition != "" || len(r.Vitals) > 0
}

func (r ReportAnalysis) HasCurrentStatus() bool {
	return len(r.Symptoms) > 0 || len(r.Medications) > 0
}

func (r ReportAnalysis) HasTreatmentPlan() bool {
	return len(r.ImmediateActions) > 0 || len(r.LongTermGoals) > 0 || len(r.FollowUp) > 0
}

func (r ReportAnalysis) Empty() bool {
	return !r.HasPatientSummary() && !r.HasCurrentStatus() && !r.HasTreatmentPlan() &&
		len(r.History) == 0 && len(r.Diagnosis) == 0 && len(r.Recommendations) == 0
}

// NormalizeReport folds either report payload into a ReportAnalysis.
func NormalizeReport(r *upstream.ReportResult) ReportAnalysis {
	var a ReportAnalysis
	if r == nil {
		return a
	}

	if info := r.Info; info != nil {
		a.Diagnosis = info.Diagnosis
		a.Medications = info.Medications
		a.Recommendations = info.Recommendations
		a.FollowUp = info.FollowUp
		return a
	}

	s := r.Summary
	if s == nil {
		return a
	}
	if ps := s.PatientSummary; ps != nil {
		a.Condition = ps.Condition
		if v := ps.VitalSigns; v != nil {
			a.Vitals = appendVital(a.Vitals, "Blood Pressure", v.BloodPressure.String())
			a.Vitals = appendVital(a.Vitals, "Heart Rate", v.HeartRate.String())
			a.Vitals = appendVital(a.Vitals, "Temperature", v.Temperature.String())
		}
	}
	a.History = s.MedicalHistory
	if cs := s.CurrentStatus; cs != nil {
		a.Symptoms = cs.Symptoms
		a.Medications = cs.Medications
	}
	if tp := s.TreatmentPlan; tp != nil {
		a.ImmediateActions = tp.ImmediateActions
		a.LongTermGoals = tp.LongTermGoals
	}
	a.Recommendations = s.Recommendations
	return a
}

func appendVital(vs []Vital, label, value string) []Vital {
	if strings.TrimSpace(value) == "" {
		return vs
	}
	return append(vs, Vital{Label: label, Value: value})
}
