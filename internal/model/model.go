package model

import (
	"time"
)

// Kind names a record kind. It is used in error messages and audit events.
type Kind string

const (
	KindReporter Kind = "reporter"
	KindPatient  Kind = "patient"
	KindDisease  Kind = "disease"
	KindReport   Kind = "report"
	KindAccount  Kind = "account"
)

type Reporter struct {
	ID                  int64     `json:"id"`
	FirstName           string    `json:"first_name"`
	LastName            string    `json:"last_name"`
	Email               string    `json:"email"`
	JobTitle            string    `json:"job_title"`
	PhoneNumber         string    `json:"phone_number"`
	OrganizationName    string    `json:"organization_name"`
	OrganizationAddress string    `json:"organization_address"`
	RegistrationDate    time.Time `json:"registration_date"`
}

type Patient struct {
	ID                  int64     `json:"id"`
	FirstName           string    `json:"first_name"`
	LastName            string    `json:"last_name"`
	DateOfBirth         time.Time `json:"date_of_birth"`
	Gender              Gender    `json:"gender"`
	MedicalRecordNumber int64     `json:"medical_record_number"`
	PatientAddress      string    `json:"patient_address"`
	EmergencyContact    *string   `json:"emergency_contact"`

	// Age is derived on read and never persisted.
	Age int `json:"age"`
}

// AgeAt returns the number of whole years between the date of birth and now.
func (p *Patient) AgeAt(now time.Time) int {
	dob := p.DateOfBirth.In(now.Location())
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

type Disease struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Category        DiseaseCategory `json:"category"`
	DateDetected    time.Time       `json:"date_detected"`
	Symptoms        string          `json:"symptoms"`
	SeverityLevel   SeverityLevel   `json:"severity_level"`
	LabResults      *string         `json:"lab_results"`
	TreatmentStatus TreatmentStatus `json:"treatment_status"`
	DateCreated     time.Time       `json:"date_created"`
	CreatedBy       int64           `json:"created_by"`
	DateUpdated     *time.Time      `json:"date_updated"`
	UpdatedBy       *int64          `json:"updated_by"`
}

type Report struct {
	ID          int64        `json:"id"`
	Status      ReportStatus `json:"status"`
	PatientID   *int64       `json:"patient_id"`
	DiseaseID   *int64       `json:"disease_id"`
	ReporterID  *int64       `json:"reporter_id"`
	UpdatedBy   *int64       `json:"updated_by"`
	DateCreated time.Time    `json:"date_created"`
	DateUpdated *time.Time   `json:"date_updated"`
}

// ReportView is a Report with its related records resolved for responses.
type ReportView struct {
	Report
	Reporter *Reporter `json:"reporter"`
	Patient  *Patient  `json:"patient"`
	Disease  *Disease  `json:"disease"`
}

// Account is the credential record behind a Principal. Its ID is the id of
// the Reporter it authenticates.
type Account struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Disabled     bool   `json:"disabled"`
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Disabled bool   `json:"disabled"`
}
