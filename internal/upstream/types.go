package upstream

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Text accepts a JSON string, number or bool and keeps it as display text.
// The diagnosis backend is loose about scalar types (ratings come back as
// 4.8 or "4.8/5", experience as 12 or "12 years").
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*t = Text(n.String())
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = Text(strconv.FormatBool(v))
	return nil
}

func (t Text) String() string { return string(t) }

type symptomsResponse struct {
	Symptoms []string `json:"symptoms"`
}

type diagnoseRequest struct {
	Symptoms []string `json:"symptoms"`
}

// Diagnosis is the /api/diagnose success payload.
type Diagnosis struct {
	PredictedDisease   string      `json:"predicted_disease"`
	Confidence         float64     `json:"confidence"`
	PossibleConditions []Condition `json:"possible_conditions"`
}

type Condition struct {
	Disease     string  `json:"disease"`
	Probability float64 `json:"probability"`
}

type precautionsResponse struct {
	Precautions []string `json:"precautions"`
}

type Doctor struct {
	Name           string `json:"name"`
	Rating         Text   `json:"rating"`
	Specialization string `json:"specialization"`
	Experience     Text   `json:"experience"`
	Location       string `json:"location"`
	Availability   string `json:"availability"`
	Contact        string `json:"contact"`
}

type doctorsResponse struct {
	Doctors []Doctor `json:"doctors"`
}

// ScanResult holds whichever scan payload the configured endpoint variant
// returned. Exactly one of Predictions and Upload is set.
type ScanResult struct {
	Predictions *ScanPredictions
	Upload      *ScanData
}

// ScanPredictions is the flat /api/analyze-scan shape.
type ScanPredictions struct {
	Message     string           `json:"message"`
	Predictions []ScanPrediction `json:"predictions"`
}

type ScanPrediction struct {
	Condition       string   `json:"condition"`
	Severity        string   `json:"severity"`
	Confidence      float64  `json:"confidence"`
	Description     string   `json:"description"`
	Recommendations []string `json:"recommendations"`
}

// ScanData is the /api/upload-scan shape, found either under "data" or at
// the top level of the response.
type ScanData struct {
	Findings          *ScanFindings      `json:"findings"`
	AnalysisSummary   *AnalysisSummary   `json:"analysis_summary"`
	DiseaseIndicators *DiseaseIndicators `json:"disease_indicators"`
	Recommendations   []string           `json:"recommendations"`
}

type ScanFindings struct {
	PrimaryCondition string   `json:"primary_condition"`
	Severity         string   `json:"severity"`
	ConfidenceScore  float64  `json:"confidence_score"`
	NormalStructures []string `json:"normal_structures"`
	Abnormalities    []string `json:"abnormalities"`
}

type AnalysisSummary struct {
	MainFinding     string   `json:"main_finding"`
	Confidence      Text     `json:"confidence"`
	SeverityLevel   Text     `json:"severity_level"`
	KeyObservations []string `json:"key_observations"`
}

type DiseaseIndicators struct {
	PotentialConditions []string `json:"potential_conditions"`
	Severity            string   `json:"severity"`
	ConfidenceScore     float64  `json:"confidence_score"`
}

type scanUploadResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Data    *ScanData `json:"data"`
	ScanData
}

// ReportResult mirrors ScanResult for medical reports.
type ReportResult struct {
	Info    *ReportInfo
	Summary *ReportSummary
}

// ReportInfo is the /api/analyze-report "report_info" section map.
type ReportInfo struct {
	Diagnosis       []string `json:"diagnosis"`
	Medications     []string `json:"medications"`
	Recommendations []string `json:"recommendations"`
	FollowUp        []string `json:"follow_up"`
}

type reportInfoResponse struct {
	ReportInfo *ReportInfo `json:"report_info"`
}

// ReportSummary is the /api/upload-report structured summary.
type ReportSummary struct {
	PatientSummary  *PatientSummary `json:"patient_summary"`
	MedicalHistory  []string        `json:"medical_history"`
	CurrentStatus   *CurrentStatus  `json:"current_status"`
	TreatmentPlan   *TreatmentPlan  `json:"treatment_plan"`
	Recommendations []string        `json:"recommendations"`
}

type PatientSummary struct {
	Condition  string      `json:"condition"`
	VitalSigns *VitalSigns `json:"vital_signs"`
}

type VitalSigns struct {
	BloodPressure Text `json:"blood_pressure"`
	HeartRate     Text `json:"heart_rate"`
	Temperature   Text `json:"temperature"`
}

type CurrentStatus struct {
	Symptoms    []string `json:"symptoms"`
	Medications []string `json:"medications"`
}

type TreatmentPlan struct {
	ImmediateActions []string `json:"immediate_actions"`
	LongTermGoals    []string `json:"long_term_goals"`
}

type reportUploadResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Data    *ReportSummary `json:"data"`
	ReportSummary
}

// ChatMessage is one entry of a chatbot turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatTurn is the chatbot reply. Suggestions is nil when the response
// carried no suggestions field.
type ChatTurn struct {
	Messages    []ChatMessage `json:"messages"`
	Suggestions []string      `json:"suggestions"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	ChatTurn
	Response *ChatTurn `json:"response"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by both login and register.
type AuthResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
