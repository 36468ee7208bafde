package model

import (
	"fmt"
	"net/mail"
	"time"
	"unicode/utf8"
)

// FieldError is a rejected input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func required(field string) error {
	return &FieldError{Field: field, Reason: "required"}
}

type fieldCheck func() error

func firstError(checks ...fieldCheck) error {
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func text(field, v string, max int) fieldCheck {
	return func() error {
		if v == "" {
			return required(field)
		}
		if utf8.RuneCountInString(v) > max {
			return &FieldError{Field: field, Reason: fmt.Sprintf("longer than %d characters", max)}
		}
		return nil
	}
}

func optionalText(field string, v *string, max int) fieldCheck {
	return func() error {
		if v != nil && utf8.RuneCountInString(*v) > max {
			return &FieldError{Field: field, Reason: fmt.Sprintf("longer than %d characters", max)}
		}
		return nil
	}
}

func enum(field string, valid bool) fieldCheck {
	return func() error {
		if !valid {
			return &FieldError{Field: field, Reason: "unknown value"}
		}
		return nil
	}
}

type ReporterPatch struct {
	FirstName           Optional[string] `json:"first_name" yaml:"first_name"`
	LastName            Optional[string] `json:"last_name" yaml:"last_name"`
	Email               Optional[string] `json:"email" yaml:"email"`
	JobTitle            Optional[string] `json:"job_title" yaml:"job_title"`
	PhoneNumber         Optional[string] `json:"phone_number" yaml:"phone_number"`
	OrganizationName    Optional[string] `json:"organization_name" yaml:"organization_name"`
	OrganizationAddress Optional[string] `json:"organization_address" yaml:"organization_address"`
}

func (p ReporterPatch) ApplyTo(r *Reporter) {
	p.FirstName.ApplyTo(&r.FirstName)
	p.LastName.ApplyTo(&r.LastName)
	p.Email.ApplyTo(&r.Email)
	p.JobTitle.ApplyTo(&r.JobTitle)
	p.PhoneNumber.ApplyTo(&r.PhoneNumber)
	p.OrganizationName.ApplyTo(&r.OrganizationName)
	p.OrganizationAddress.ApplyTo(&r.OrganizationAddress)
}

func (r *Reporter) Validate() error {
	return firstError(
		text("first_name", r.FirstName, 50),
		text("last_name", r.LastName, 50),
		func() error {
			if r.Email == "" {
				return required("email")
			}
			if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
				return &FieldError{Field: "email", Reason: "not an email address"}
			}
			return nil
		},
		text("job_title", r.JobTitle, 100),
		text("phone_number", r.PhoneNumber, 32),
		text("organization_name", r.OrganizationName, 200),
		text("organization_address", r.OrganizationAddress, 500),
	)
}

type PatientPatch struct {
	FirstName           Optional[string]    `json:"first_name" yaml:"first_name"`
	LastName            Optional[string]    `json:"last_name" yaml:"last_name"`
	DateOfBirth         Optional[time.Time] `json:"date_of_birth" yaml:"date_of_birth"`
	Gender              Optional[Gender]    `json:"gender" yaml:"gender"`
	MedicalRecordNumber Optional[int64]     `json:"medical_record_number" yaml:"medical_record_number"`
	PatientAddress      Optional[string]    `json:"patient_address" yaml:"patient_address"`
	EmergencyContact    Optional[*string]   `json:"emergency_contact" yaml:"emergency_contact"`
}

func (p PatientPatch) ApplyTo(pt *Patient) {
	p.FirstName.ApplyTo(&pt.FirstName)
	p.LastName.ApplyTo(&pt.LastName)
	p.DateOfBirth.ApplyTo(&pt.DateOfBirth)
	p.Gender.ApplyTo(&pt.Gender)
	p.MedicalRecordNumber.ApplyTo(&pt.MedicalRecordNumber)
	p.PatientAddress.ApplyTo(&pt.PatientAddress)
	p.EmergencyContact.ApplyTo(&pt.EmergencyContact)
}

// Validate checks the record as it would be stored at now.
func (p *Patient) Validate(now time.Time) error {
	return firstError(
		text("first_name", p.FirstName, 50),
		text("last_name", p.LastName, 50),
		func() error {
			if p.DateOfBirth.IsZero() {
				return required("date_of_birth")
			}
			if p.DateOfBirth.After(now) {
				return &FieldError{Field: "date_of_birth", Reason: "in the future"}
			}
			return nil
		},
		enum("gender", p.Gender.Valid()),
		func() error {
			if p.MedicalRecordNumber <= 0 {
				return required("medical_record_number")
			}
			return nil
		},
		text("patient_address", p.PatientAddress, 500),
		optionalText("emergency_contact", p.EmergencyContact, 200),
	)
}

type DiseasePatch struct {
	Name            Optional[string]          `json:"name" yaml:"name"`
	Category        Optional[DiseaseCategory] `json:"category" yaml:"category"`
	DateDetected    Optional[time.Time]       `json:"date_detected" yaml:"date_detected"`
	Symptoms        Optional[string]          `json:"symptoms" yaml:"symptoms"`
	SeverityLevel   Optional[SeverityLevel]   `json:"severity_level" yaml:"severity_level"`
	LabResults      Optional[*string]         `json:"lab_results" yaml:"lab_results"`
	TreatmentStatus Optional[TreatmentStatus] `json:"treatment_status" yaml:"treatment_status"`
}

func (p DiseasePatch) ApplyTo(d *Disease) {
	p.Name.ApplyTo(&d.Name)
	p.Category.ApplyTo(&d.Category)
	p.DateDetected.ApplyTo(&d.DateDetected)
	p.Symptoms.ApplyTo(&d.Symptoms)
	p.SeverityLevel.ApplyTo(&d.SeverityLevel)
	p.LabResults.ApplyTo(&d.LabResults)
	p.TreatmentStatus.ApplyTo(&d.TreatmentStatus)
}

func (d *Disease) Validate() error {
	return firstError(
		text("name", d.Name, 200),
		enum("category", d.Category.Valid()),
		func() error {
			if d.DateDetected.IsZero() {
				return required("date_detected")
			}
			return nil
		},
		text("symptoms", d.Symptoms, 2000),
		enum("severity_level", d.SeverityLevel.Valid()),
		enum("treatment_status", d.TreatmentStatus.Valid()),
	)
}

type ReportPatch struct {
	Status    Optional[ReportStatus] `json:"status" yaml:"status"`
	PatientID Optional[*int64]       `json:"patient_id" yaml:"patient_id"`
	DiseaseID Optional[*int64]       `json:"disease_id" yaml:"disease_id"`
}

func (p ReportPatch) ApplyTo(r *Report) {
	p.Status.ApplyTo(&r.Status)
	p.PatientID.ApplyTo(&r.PatientID)
	p.DiseaseID.ApplyTo(&r.DiseaseID)
}

func (r *Report) Validate() error {
	if r.Status == "" {
		return required("status")
	}
	return enum("status", r.Status.Valid())()
}
