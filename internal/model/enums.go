package model

import (
	"fmt"
)

func unknownValue(field string, text []byte) error {
	return &FieldError{Field: field, Reason: fmt.Sprintf("unknown value %q", string(text))}
}

type Gender string

const (
	GenderFemale Gender = "Female"
	GenderMale   Gender = "Male"
	GenderOther  Gender = "Other"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderFemale, GenderMale, GenderOther:
		return true
	}
	return false
}

func (g *Gender) UnmarshalText(text []byte) error {
	v := Gender(text)
	if !v.Valid() {
		return unknownValue("gender", text)
	}
	*g = v
	return nil
}

type DiseaseCategory string

const (
	CategoryBacterial DiseaseCategory = "Bacterial"
	CategoryViral     DiseaseCategory = "Viral"
	CategoryParasitic DiseaseCategory = "Parasitic"
	CategoryOther     DiseaseCategory = "Other"
)

func (c DiseaseCategory) Valid() bool {
	switch c {
	case CategoryBacterial, CategoryViral, CategoryParasitic, CategoryOther:
		return true
	}
	return false
}

func (c *DiseaseCategory) UnmarshalText(text []byte) error {
	v := DiseaseCategory(text)
	if !v.Valid() {
		return unknownValue("category", text)
	}
	*c = v
	return nil
}

type SeverityLevel string

const (
	SeverityLow      SeverityLevel = "Low"
	SeverityMedium   SeverityLevel = "Medium"
	SeverityHigh     SeverityLevel = "High"
	SeverityCritical SeverityLevel = "Critical"
)

func (s SeverityLevel) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

func (s *SeverityLevel) UnmarshalText(text []byte) error {
	v := SeverityLevel(text)
	if !v.Valid() {
		return unknownValue("severity_level", text)
	}
	*s = v
	return nil
}

type TreatmentStatus string

const (
	TreatmentNone      TreatmentStatus = "None"
	TreatmentOngoing   TreatmentStatus = "Ongoing"
	TreatmentCompleted TreatmentStatus = "Completed"
)

func (t TreatmentStatus) Valid() bool {
	switch t {
	case TreatmentNone, TreatmentOngoing, TreatmentCompleted:
		return true
	}
	return false
}

func (t *TreatmentStatus) UnmarshalText(text []byte) error {
	v := TreatmentStatus(text)
	if !v.Valid() {
		return unknownValue("treatment_status", text)
	}
	*t = v
	return nil
}

// ReportStatus is the lifecycle state of a Report.
type ReportStatus string

const (
	StatusDraft       ReportStatus = "Draft"
	StatusSubmitted   ReportStatus = "Submitted"
	StatusUnderReview ReportStatus = "Under Review"
	StatusApproved    ReportStatus = "Approved"
)

// ReportStatuses lists every status in lifecycle order.
var ReportStatuses = []ReportStatus{StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved}

func (s ReportStatus) Valid() bool {
	return s.rank() >= 0
}

// IsMutable reports whether a report in this status accepts update or delete.
func (s ReportStatus) IsMutable() bool {
	return s == StatusDraft
}

// Next returns the following status in the lifecycle. Approved is terminal.
func (s ReportStatus) Next() (ReportStatus, bool) {
	r := s.rank()
	if r < 0 || r == len(ReportStatuses)-1 {
		return "", false
	}
	return ReportStatuses[r+1], true
}

// CanTransition reports whether moving from s to to keeps the lifecycle
// monotonic. Staying in place and skipping ahead are both forward moves.
func (s ReportStatus) CanTransition(to ReportStatus) bool {
	from, dst := s.rank(), to.rank()
	return from >= 0 && dst >= from
}

func (s ReportStatus) rank() int {
	for i, v := range ReportStatuses {
		if v == s {
			return i
		}
	}
	return -1
}

func (s *ReportStatus) UnmarshalText(text []byte) error {
	v := ReportStatus(text)
	if !v.Valid() {
		return unknownValue("status", text)
	}
	*s = v
	return nil
}
