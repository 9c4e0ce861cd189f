package types

import "strings"

// ResourceType tags the kind of resource being accessed
type ResourceType string

const (
	ResourceEHR    ResourceType = "ehr"
	ResourceReport ResourceType = "report"
	ResourceLab    ResourceType = "lab"
)

// ActionTag returns the audit action for an access to this resource type
func (t ResourceType) ActionTag() string {
	return "ACCESS_" + strings.ToUpper(string(t))
}

// Resource is implemented by every resource kind the engine can decide on.
// Each kind projects itself into the uniform ResourceView explicitly.
type Resource interface {
	View() ResourceView
}

// ResourceView is the uniform attribute projection of a resource
type ResourceView struct {
	ID                 string            `json:"id"`
	PatientID          string            `json:"patient_id"`
	SensitivityLevel   int               `json:"sensitivity_level"`
	RequiredClearance  int               `json:"required_clearance_level"`
	RequiredDepartment string            `json:"required_department,omitempty"`
	PatientConsent     bool              `json:"patient_consent"`
	Fields             map[string]string `json:"fields,omitempty"`
}

// View lets a bare ResourceView be used as a Resource
func (v ResourceView) View() ResourceView {
	return v
}

// ResourceOption customizes a ResourceView
type ResourceOption func(*ResourceView)

// NewResourceView builds a view with the default attribute values: sensitivity 1,
// required clearance 1, no department restriction and consent granted.
func NewResourceView(id, patientID string, opts ...ResourceOption) ResourceView {
	v := ResourceView{
		ID:                id,
		PatientID:         patientID,
		SensitivityLevel:  MinLevel,
		RequiredClearance: MinLevel,
		PatientConsent:    true,
	}
	for _, opt := range opts {
		opt(&v)
	}
	return v
}

// WithSensitivity sets the sensitivity level
func WithSensitivity(level int) ResourceOption {
	return func(v *ResourceView) { v.SensitivityLevel = level }
}

// WithRequiredClearance sets the required clearance level
func WithRequiredClearance(level int) ResourceOption {
	return func(v *ResourceView) { v.RequiredClearance = level }
}

// WithRequiredDepartment restricts the resource to a department
func WithRequiredDepartment(dept string) ResourceOption {
	return func(v *ResourceView) { v.RequiredDepartment = dept }
}

// WithConsent sets the patient consent flag
func WithConsent(consent bool) ResourceOption {
	return func(v *ResourceView) { v.PatientConsent = consent }
}

// WithField sets a kind-specific field
func WithField(key, value string) ResourceOption {
	return func(v *ResourceView) {
		if v.Fields == nil {
			v.Fields = make(map[string]string)
		}
		v.Fields[key] = value
	}
}

// ClinicalRecord is an EHR entry
type ClinicalRecord struct {
	ID                 string `json:"id"`
	PatientID          string `json:"patient_id"`
	RecordType         string `json:"record_type"`
	SensitivityLevel   int    `json:"sensitivity_level"`
	RequiredClearance  int    `json:"required_clearance_level"`
	RequiredDepartment string `json:"required_department,omitempty"`
	PatientConsent     bool   `json:"patient_consent"`
	Diagnosis          string `json:"diagnosis"`
	TreatmentPlan      string `json:"treatment_plan,omitempty"`
	Medications        string `json:"medications,omitempty"`
	Notes              string `json:"notes,omitempty"`
}

// View projects the record. Consent is carried verbatim since records always store it.
func (r *ClinicalRecord) View() ResourceView {
	recordType := r.RecordType
	if recordType == "" {
		recordType = "general"
	}
	return NewResourceView(r.ID, r.PatientID,
		WithSensitivity(levelOrDefault(r.SensitivityLevel)),
		WithRequiredClearance(levelOrDefault(r.RequiredClearance)),
		WithRequiredDepartment(r.RequiredDepartment),
		WithConsent(r.PatientConsent),
		WithField("record_type", recordType),
	)
}

// MedicalReport is an imaging or diagnostic report
type MedicalReport struct {
	ID                string `json:"id"`
	PatientID         string `json:"patient_id"`
	ReportType        string `json:"report_type"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Findings          string `json:"findings,omitempty"`
	SensitivityLevel  int    `json:"sensitivity_level"`
	RequiredClearance int    `json:"required_clearance_level"`
}

// View projects the report. Reports carry no department or consent attributes.
func (r *MedicalReport) View() ResourceView {
	return NewResourceView(r.ID, r.PatientID,
		WithSensitivity(levelOrDefault(r.SensitivityLevel)),
		WithRequiredClearance(levelOrDefault(r.RequiredClearance)),
		WithField("report_type", r.ReportType),
		WithField("title", r.Title),
	)
}

// LabResult is a single laboratory test result
type LabResult struct {
	ID                string `json:"id"`
	PatientID         string `json:"patient_id"`
	TestName          string `json:"test_name"`
	TestDate          string `json:"test_date"`
	ResultValue       string `json:"result_value"`
	NormalRange       string `json:"normal_range,omitempty"`
	Unit              string `json:"unit,omitempty"`
	IsAbnormal        bool   `json:"is_abnormal"`
	Remarks           string `json:"remarks,omitempty"`
	SensitivityLevel  int    `json:"sensitivity_level"`
	RequiredClearance int    `json:"required_clearance_level"`
}

// View projects the lab result
func (r *LabResult) View() ResourceView {
	abnormal := "false"
	if r.IsAbnormal {
		abnormal = "true"
	}
	return NewResourceView(r.ID, r.PatientID,
		WithSensitivity(levelOrDefault(r.SensitivityLevel)),
		WithRequiredClearance(levelOrDefault(r.RequiredClearance)),
		WithField("test_name", r.TestName),
		WithField("is_abnormal", abnormal),
	)
}

// levelOrDefault maps an unset level to the most permissive level
func levelOrDefault(level int) int {
	if level <= 0 {
		return MinLevel
	}
	return level
}

// ResourceAttrs is the normalized attribute set of a resource for one request
type ResourceAttrs struct {
	ResourceType       ResourceType      `json:"resource_type"`
	ResourceID         string            `json:"resource_id"`
	PatientID          string            `json:"patient_id,omitempty"`
	SensitivityLevel   int               `json:"sensitivity_level"`
	RequiredClearance  int               `json:"required_clearance_level"`
	RequiredDepartment string            `json:"required_department,omitempty"`
	PatientConsent     bool              `json:"patient_consent"`
	RecordType         string            `json:"record_type,omitempty"`
	Fields             map[string]string `json:"fields,omitempty"`
}

// ToMap converts ResourceAttrs to a map for CEL evaluation
func (r ResourceAttrs) ToMap() map[string]interface{} {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return map[string]interface{}{
		"resource_type":            string(r.ResourceType),
		"id":                       r.ResourceID,
		"patient_id":               r.PatientID,
		"sensitivity_level":        int64(r.SensitivityLevel),
		"required_clearance_level": int64(r.RequiredClearance),
		"required_department":      r.RequiredDepartment,
		"patient_consent":          r.PatientConsent,
		"record_type":              r.RecordType,
		"fields":                   fields,
	}
}
