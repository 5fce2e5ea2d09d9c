package portal

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Skufu/diagportal/internal/upstream"
)

func TestSelectionManualRoundTrip(t *testing.T) {
	sel := Selection{"fever", "cough"}
	before := sel.List()

	for _, name := range []string{"headache", "  night sweats ", "pain (left side)"} {
		if !sel.AddManual(name) {
			t.Fatalf("expected %q to be accepted", name)
		}
		sel.Remove(strings.TrimSpace(name))
		if strings.Join(sel, "|") != strings.Join(before, "|") {
			t.Fatalf("round trip of %q changed selection: %v", name, sel)
		}
	}
}

func TestSelectionAddManualIgnoresBlank(t *testing.T) {
	var sel Selection
	if sel.AddManual("   ") {
		t.Fatal("expected blank input to be ignored")
	}
	if len(sel) != 0 {
		t.Fatalf("expected empty selection, got %v", sel)
	}
}

func TestSelectionDedupesAndKeepsOrder(t *testing.T) {
	var sel Selection
	sel.Toggle("fever", true)
	sel.AddManual("cough")
	sel.AddManual("fever")
	sel.Toggle("rash", true)
	sel.Toggle("cough", false)

	if got := strings.Join(sel.List(), ","); got != "fever,rash" {
		t.Fatalf("unexpected selection %s", got)
	}
}

func TestChecklistIDs(t *testing.T) {
	entries := Checklist([]string{"fever", "cough"}, Selection{"cough", "typed"})
	if len(entries) != 2 {
		t.Fatalf("expected 2 checkboxes, got %d", len(entries))
	}
	if entries[0].ID != "symptom-fever" || entries[1].ID != "symptom-cough" {
		t.Fatalf("unexpected ids %+v", entries)
	}
	if entries[0].Checked || !entries[1].Checked {
		t.Fatalf("unexpected checked state %+v", entries)
	}
}

func TestFormatPercent(t *testing.T) {
	cases := map[float64]string{0.827: "82.7%", 0.91: "91.0%", 1: "100.0%", 0: "0.0%"}
	for in, want := range cases {
		if got := FormatPercent(in); got != want {
			t.Fatalf("FormatPercent(%v) = %s, want %s", in, got, want)
		}
	}
}

func TestNewDiagnosisViewSkipsPrimary(t *testing.T) {
	v := NewDiagnosisView(&upstream.Diagnosis{
		PredictedDisease: "Flu",
		Confidence:       0.91,
		PossibleConditions: []upstream.Condition{
			{Disease: "Flu", Probability: 0.91},
			{Disease: "Cold", Probability: 0.5},
		},
	})
	if v.Disease != "Flu" || v.Confidence != "91.0%" {
		t.Fatalf("unexpected primary %+v", v)
	}
	if len(v.Others) != 1 || v.Others[0].Disease != "Cold" || v.Others[0].Probability != "0.5" {
		t.Fatalf("unexpected others %+v", v.Others)
	}
}

func TestRequireSymptoms(t *testing.T) {
	if err := RequireSymptoms(nil); !errors.Is(err, ErrNoSymptoms) {
		t.Fatalf("expected ErrNoSymptoms, got %v", err)
	}
	if err := RequireSymptoms(Selection{"fever"}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestPadPrecautions(t *testing.T) {
	got := PadPrecautions([]string{"Rest"})
	if len(got) != 3 || got[0] != "Rest" || got[1] != PrecautionFiller || got[2] != PrecautionFiller {
		t.Fatalf("unexpected padding %v", got)
	}
	if got := PadPrecautions(nil); got != nil {
		t.Fatalf("expected empty list to stay empty, got %v", got)
	}
	four := []string{"a", "b", "c", "d"}
	if got := PadPrecautions(four); len(got) != 4 {
		t.Fatalf("expected no padding, got %v", got)
	}
}

func TestPanelOneShot(t *testing.T) {
	var p Panel
	if err := p.CanShowPrecautions(); !errors.Is(err, ErrNoDiagnosis) {
		t.Fatalf("expected ErrNoDiagnosis, got %v", err)
	}
	p.Reset("Flu")
	p.PrecautionsShown = true
	if err := p.CanShowPrecautions(); !errors.Is(err, ErrAlreadyShown) {
		t.Fatalf("expected ErrAlreadyShown, got %v", err)
	}
	if err := p.CanShowDoctors(); err != nil {
		t.Fatalf("doctors should still be available: %v", err)
	}
	p.Reset("Cold")
	if err := p.CanShowPrecautions(); err != nil || p.Disease != "Cold" {
		t.Fatalf("fresh diagnosis should re-arm the panel: %v %+v", err, p)
	}
}

func TestSeverityTier(t *testing.T) {
	for _, s := range []string{"HIGH", "high", "High"} {
		if got := SeverityTier(s); got != "danger" {
			t.Fatalf("SeverityTier(%q) = %s", s, got)
		}
	}
	if SeverityTier("Medium") != "warning" || SeverityTier("low") != "success" {
		t.Fatal("unexpected medium/low mapping")
	}
	if SeverityTier("extreme") != "info" || SeverityTier("") != "info" {
		t.Fatal("unrecognized severity should map to info")
	}
}

func TestNormalizeScanPredictions(t *testing.T) {
	a := NormalizeScan(&upstream.ScanResult{Predictions: &upstream.ScanPredictions{
		Predictions: []upstream.ScanPrediction{{Condition: "Edema", Severity: "high", Confidence: 87.5}},
	}})
	if a.Summary.Note != DefaultScanNote {
		t.Fatalf("expected default note, got %q", a.Summary.Note)
	}
	f := a.Findings[0]
	if f.Severity != "HIGH" || f.Tier != "danger" || f.Confidence != "87.5%" {
		t.Fatalf("unexpected finding %+v", f)
	}

	empty := NormalizeScan(&upstream.ScanResult{Predictions: &upstream.ScanPredictions{}})
	if !empty.Empty() {
		t.Fatalf("expected empty analysis, got %+v", empty)
	}
}

func TestNormalizeScanUpload(t *testing.T) {
	a := NormalizeScan(&upstream.ScanResult{Upload: &upstream.ScanData{
		Findings: &upstream.ScanFindings{
			PrimaryCondition: "Calcification",
			Severity:         "Medium",
			ConfidenceScore:  0.85,
			Abnormalities:    []string{"Minor calcification"},
		},
		DiseaseIndicators: &upstream.DiseaseIndicators{
			PotentialConditions: []string{"Degenerative condition"},
			Severity:            "mild",
		},
		Recommendations: []string{"Follow-up scan"},
	}})
	if len(a.Findings) != 2 || a.Findings[0].Confidence != "85.0%" || a.Findings[0].Tier != "warning" {
		t.Fatalf("unexpected findings %+v", a.Findings)
	}
	if a.Findings[1].Tier != "info" || a.Findings[1].Confidence != "" {
		t.Fatalf("unexpected indicator finding %+v", a.Findings[1])
	}
	if len(a.Normal) != 0 || len(a.Abnormal) != 1 || !a.Summary.Empty() {
		t.Fatalf("unexpected lists %+v", a)
	}
}

func TestNormalizeReportShapes(t *testing.T) {
	info := NormalizeReport(&upstream.ReportResult{Info: &upstream.ReportInfo{
		Diagnosis: []string{"Type 2 diabetes"},
		FollowUp:  []string{"Review in 3 months"},
	}})
	if info.HasPatientSummary() || !info.HasTreatmentPlan() || len(info.Diagnosis) != 1 {
		t.Fatalf("unexpected report_info mapping %+v", info)
	}

	sum := NormalizeReport(&upstream.ReportResult{Summary: &upstream.ReportSummary{
		PatientSummary: &upstream.PatientSummary{
			Condition:  "Stable",
			VitalSigns: &upstream.VitalSigns{BloodPressure: "120/80", Temperature: "36.8"},
		},
		CurrentStatus: &upstream.CurrentStatus{Medications: []string{"Metformin"}},
	}})
	if len(sum.Vitals) != 2 || sum.Vitals[1].Label != "Temperature" {
		t.Fatalf("unexpected vitals %+v", sum.Vitals)
	}
	if !sum.HasCurrentStatus() || sum.HasTreatmentPlan() {
		t.Fatalf("unexpected sections %+v", sum)
	}

	if !NormalizeReport(&upstream.ReportResult{Info: &upstream.ReportInfo{}}).Empty() {
		t.Fatal("expected empty report")
	}
}

func TestFirstFile(t *testing.T) {
	if _, err := FirstFile([]string{}); !errors.Is(err, ErrNoFile) {
		t.Fatalf("expected ErrNoFile, got %v", err)
	}
	if f, _ := FirstFile([]string{"a.png", "b.png"}); f != "a.png" {
		t.Fatalf("expected first file, got %s", f)
	}
}

func TestCheckFileName(t *testing.T) {
	if err := CheckFileName("scan.PNG"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := CheckFileName("notes.exe"); !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("expected ErrUnsupportedFile, got %v", err)
	}
	if _, err := ParseKind("xray"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestChatGuard(t *testing.T) {
	c := NewChat()
	now := time.Now()
	if err := c.Begin(now, time.Minute, "a"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := c.Begin(now.Add(time.Second), time.Minute, "b"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := c.Begin(now.Add(2*time.Minute), time.Minute, "c"); err != nil {
		t.Fatalf("stale turn should be taken over: %v", err)
	}
	if c.Owns("a") || !c.Owns("c") {
		t.Fatalf("expected the takeover turn to own the chat, got %q", c.Turn)
	}
	c.End()
	if c.Phase != PhaseIdle {
		t.Fatalf("expected idle, got %s", c.Phase)
	}
}

func TestChatApplyTurn(t *testing.T) {
	c := NewChat()
	c.Append(RoleUser, "hi")
	added := c.ApplyTurn(&upstream.ChatTurn{
		Messages: []upstream.ChatMessage{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
	})
	if len(added) != 1 || len(c.Transcript) != 3 {
		t.Fatalf("unexpected transcript %+v", c.Transcript)
	}
	if len(c.Suggestions) != len(DefaultSuggestions) {
		t.Fatal("suggestions must stay when the turn has none")
	}
	c.ApplyTurn(&upstream.ChatTurn{Suggestions: []string{"More"}})
	if len(c.Suggestions) != 1 {
		t.Fatalf("expected suggestions replaced, got %v", c.Suggestions)
	}

	m := c.ApplyError(&upstream.ServerError{Message: "Message cannot be empty"})
	if m.Role != RoleError || m.Content != "Message cannot be empty" {
		t.Fatalf("unexpected error entry %+v", m)
	}
	m = c.ApplyError(errors.New("dial tcp: refused"))
	if m.Content != ChatFailedMessage {
		t.Fatalf("unexpected transport entry %+v", m)
	}
}

func TestFormatMessage(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello", "<p>Hello</p>"},
		{"crisis", "IMMEDIATE ACTIONS:\n- call", `<div class="crisis-message">IMMEDIATE ACTIONS:
- call</div>`},
		{"bullets", "Tips:\n- a\n- b", "<ul>Tips:\n<ol><li>a</li>\n<li>b</li></ol></ul>"},
		{"numbered", "Steps:\n\n1. breathe\n2. walk", "<p>Steps:</p><ol><li>breathe</li>\n<li>walk</li></ol>"},
		{"coping", "Some coping strategies:\n\nrest", `<div class="coping-strategies">Some coping strategies:<p>rest</div></p>`},
		{"resources", "Helpful resources: hotline", `<div class="resources-list">Helpful resources: hotline</div>`},
		{"escaped", "<b>x</b>", "<p>&lt;b&gt;x&lt;/b&gt;</p>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := string(FormatMessage(tc.in)); got != tc.want {
				t.Fatalf("got %q\nwant %q", got, tc.want)
			}
		})
	}
}
