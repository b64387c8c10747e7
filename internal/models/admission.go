package models

// Status and trigger codes produced by admission intake.
const (
	StatusApplicationDraft          = "APDR"
	StatusApplicationSubmitted      = "APSB"
	StatusApplicationPendingPayment = "APPY"
	StatusApplicationRejected       = "APRJ"

	TriggerSubmitForReview = "TRSB"
	TriggerAwaitPayment    = "TRPY"
	TriggerAutoReject      = "TRAR"
)

// MajorValidationRules are the admission constraints configured for a major.
// A nil or empty field imposes no constraint.
type MajorValidationRules struct {
	MajorID                 string             `db:"id" json:"majorId"`
	MinTestScores           map[string]float64 `db:"-" json:"minTestScores,omitempty"`
	MinGPA                  *float64           `db:"min_gpa" json:"minGpa,omitempty"`
	MinGraduationYear       *int               `db:"min_graduation_year" json:"minGraduationYear,omitempty"`
	AllowedCertificateTypes []string           `db:"-" json:"allowedCertificateTypes,omitempty"`
	RegistrationFee         float64            `db:"registration_fee" json:"registrationFee"`
}

// ApplicantData is the intake information evaluated against a major's rules.
type ApplicantData struct {
	TestScores      map[string]float64 `json:"testScores,omitempty"`
	GPA             *float64           `json:"gpa,omitempty"`
	GraduationYear  *int               `json:"graduationYear,omitempty"`
	CertificateType string             `json:"certificateType,omitempty"`
}

// AdmissionDecision is the outcome of evaluating an application at intake.
type AdmissionDecision struct {
	StatusCode  string   `json:"statusCode"`
	TriggerCode string   `json:"triggerCode,omitempty"`
	RequiresFee bool     `json:"requiresFee"`
	Failures    []string `json:"failures,omitempty"`
}
