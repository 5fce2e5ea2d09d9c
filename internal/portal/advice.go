package portal

import "errors"

const (
	PrecautionFiller   = "Consult with your healthcare provider for additional precautions"
	MinPrecautions     = 3
	PrecautionsFailed  = "Error loading precautions. Please try again."
	DoctorsFailed      = "Error loading doctor information. Please try again."
	NoPrecautionsFound = "No specific precautions found for this condition. Please consult a healthcare provider."
	NoDoctorsFound     = "No specific doctors found for this condition. Please visit your nearest hospital."
)

var (
	ErrNoDiagnosis  = errors.New("no diagnosis to look up")
	ErrAlreadyShown = errors.New("already shown for this diagnosis")
)

// Panel is the precautions/doctors state tied to the latest diagnosis. The
// disease name is carried here rather than read back from rendered output.
type Panel struct {
	Disease          string `json:"disease"`
	PrecautionsShown bool   `json:"precautions_shown"`
	DoctorsShown     bool   `json:"doctors_shown"`
}

// Reset starts a fresh panel for a new diagnosis.
func (p *Panel) Reset(disease string) {
	*p = Panel{Disease: disease}
}

// CanShowPrecautions is the one-shot guard for the precautions button.
func (p Panel) CanShowPrecautions() error {
	if p.Disease == "" {
		return ErrNoDiagnosis
	}
	if p.PrecautionsShown {
		return ErrAlreadyShown
	}
	return nil
}

func (p Panel) CanShowDoctors() error {
	if p.Disease == "" {
		return ErrNoDiagnosis
	}
	if p.DoctorsShown {
		return ErrAlreadyShown
	}
	return nil
}

// PadPrecautions returns at least MinPrecautions entries, filling with
// PrecautionFiller. An empty list stays empty so the caller can show the
// not-found warning.
func PadPrecautions(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in), max(len(in), MinPrecautions))
	copy(out, in)
	for len(out) < MinPrecautions {
		out = append(out, PrecautionFiller)
	}
	return out
}
