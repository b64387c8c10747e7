package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
)

// Decide maps applicant data against a major's validation rules. It has no
// side effects; callers persist the resulting state and audit note.
func Decide(rules models.MajorValidationRules, applicant models.ApplicantData, isDraft bool) models.AdmissionDecision {
	if isDraft {
		return models.AdmissionDecision{StatusCode: models.StatusApplicationDraft}
	}

	failures := validateApplicant(rules, applicant)
	switch {
	case len(failures) > 0:
		return models.AdmissionDecision{
			StatusCode:  models.StatusApplicationRejected,
			TriggerCode: models.TriggerAutoReject,
			Failures:    failures,
		}
	case rules.RegistrationFee > 0:
		return models.AdmissionDecision{
			StatusCode:  models.StatusApplicationPendingPayment,
			TriggerCode: models.TriggerAwaitPayment,
			RequiresFee: true,
		}
	default:
		return models.AdmissionDecision{
			StatusCode:  models.StatusApplicationSubmitted,
			TriggerCode: models.TriggerSubmitForReview,
		}
	}
}

func validateApplicant(rules models.MajorValidationRules, applicant models.ApplicantData) []string {
	var failures []string

	tests := make([]string, 0, len(rules.MinTestScores))
	for test := range rules.MinTestScores {
		tests = append(tests, test)
	}
	sort.Strings(tests)
	for _, test := range tests {
		min := rules.MinTestScores[test]
		score, ok := applicant.TestScores[test]
		if !ok {
			failures = append(failures, fmt.Sprintf("%s score missing (minimum %s)", test, formatNumber(min)))
			continue
		}
		if score < min {
			failures = append(failures, fmt.Sprintf("%s score %s below minimum %s", test, formatNumber(score), formatNumber(min)))
		}
	}

	if rules.MinGPA != nil {
		switch {
		case applicant.GPA == nil:
			failures = append(failures, fmt.Sprintf("gpa missing (minimum %s)", formatNumber(*rules.MinGPA)))
		case *applicant.GPA < *rules.MinGPA:
			failures = append(failures, fmt.Sprintf("gpa %s below minimum %s", formatNumber(*applicant.GPA), formatNumber(*rules.MinGPA)))
		}
	}

	if rules.MinGraduationYear != nil {
		switch {
		case applicant.GraduationYear == nil:
			failures = append(failures, fmt.Sprintf("graduation year missing (minimum %d)", *rules.MinGraduationYear))
		case *applicant.GraduationYear < *rules.MinGraduationYear:
			failures = append(failures, fmt.Sprintf("graduation year %d before minimum %d", *applicant.GraduationYear, *rules.MinGraduationYear))
		}
	}

	if len(rules.AllowedCertificateTypes) > 0 && !containsFold(rules.AllowedCertificateTypes, applicant.CertificateType) {
		cert := applicant.CertificateType
		if cert == "" {
			cert = "none"
		}
		failures = append(failures, fmt.Sprintf("certificate type %s not in allowed types [%s]", cert, strings.Join(rules.AllowedCertificateTypes, ", ")))
	}

	return failures
}

func containsFold(values []string, target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}

func formatNumber(v float64) string {
	return fmt.Sprintf("%g", v)
}
