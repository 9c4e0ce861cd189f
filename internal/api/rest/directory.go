package rest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

var (
	// ErrUnknownPrincipal is returned when a token subject has no directory entry
	ErrUnknownPrincipal = errors.New("unknown principal")
	// ErrPatientNotFound is returned for an unknown patient id
	ErrPatientNotFound = errors.New("patient not found")
)

// PrincipalDirectory resolves authenticated subjects to principals
type PrincipalDirectory interface {
	Principal(ctx context.Context, id string) (*types.Principal, error)
}

// Patient is the basic, non-clinical patient record
type Patient struct {
	ID          string `json:"patient_id" yaml:"id"`
	FirstName   string `json:"first_name" yaml:"first_name"`
	LastName    string `json:"last_name" yaml:"last_name"`
	DateOfBirth string `json:"date_of_birth,omitempty" yaml:"date_of_birth"`
	BloodGroup  string `json:"blood_group,omitempty" yaml:"blood_group"`
}

// ResourceRepository serves patients and their records
type ResourceRepository interface {
	Patients(ctx context.Context) ([]*Patient, error)
	Patient(ctx context.Context, id string) (*Patient, error)
	Resources(ctx context.Context, patientID string, resourceType types.ResourceType) ([]types.Resource, error)
}

// MemoryDirectory is an in-memory PrincipalDirectory
type MemoryDirectory struct {
	mu         sync.RWMutex
	principals map[string]*types.Principal
}

// NewMemoryDirectory creates a directory holding the given principals
func NewMemoryDirectory(principals ...*types.Principal) *MemoryDirectory {
	d := &MemoryDirectory{principals: make(map[string]*types.Principal)}
	for _, p := range principals {
		d.Put(p)
	}
	return d
}

// Put adds or replaces a principal
func (d *MemoryDirectory) Put(p *types.Principal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *p
	d.principals[p.ID] = &cp
}

func (d *MemoryDirectory) Principal(_ context.Context, id string) (*types.Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.principals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrincipal, id)
	}
	cp := *p
	return &cp, nil
}

// MemoryRepository is an in-memory ResourceRepository
type MemoryRepository struct {
	mu        sync.RWMutex
	patients  map[string]*Patient
	resources map[string]map[types.ResourceType][]types.Resource
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:  make(map[string]*Patient),
		resources: make(map[string]map[types.ResourceType][]types.Resource),
	}
}

// AddPatient adds or replaces a patient
func (r *MemoryRepository) AddPatient(p *Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.patients[p.ID] = &cp
}

// AddResource appends a record to a patient's records of the given type
func (r *MemoryRepository) AddResource(patientID string, resourceType types.ResourceType, res types.Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byType, ok := r.resources[patientID]
	if !ok {
		byType = make(map[types.ResourceType][]types.Resource)
		r.resources[patientID] = byType
	}
	byType[resourceType] = append(byType[resourceType], res)
}

func (r *MemoryRepository) Patients(_ context.Context) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Patient, 0, len(r.patients))
	for _, p := range r.patients {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) Patient(_ context.Context, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) Resources(_ context.Context, patientID string, resourceType types.ResourceType) ([]types.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.patients[patientID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
	}
	src := r.resources[patientID][resourceType]
	out := make([]types.Resource, len(src))
	copy(out, src)
	return out, nil
}

// seedFile is the on-disk form of the directory and repository
type seedFile struct {
	Principals []seedPrincipal `yaml:"principals"`
	Patients   []seedPatient   `yaml:"patients"`
}

type seedPrincipal struct {
	ID                    string   `yaml:"id"`
	Username              string   `yaml:"username"`
	Role                  string   `yaml:"role"`
	Department            string   `yaml:"department"`
	Specialization        string   `yaml:"specialization"`
	Certifications        []string `yaml:"certifications"`
	ClearanceLevel        int      `yaml:"clearance_level"`
	IsEmergencyAuthorized bool     `yaml:"is_emergency_authorized"`
	WorkingHoursStart     string   `yaml:"working_hours_start"`
	WorkingHoursEnd       string   `yaml:"working_hours_end"`
	CurrentLocation       string   `yaml:"current_location"`
}

type seedPatient struct {
	Patient    `yaml:",inline"`
	Records    []seedRecord `yaml:"records"`
	Reports    []seedReport `yaml:"reports"`
	LabResults []seedLab    `yaml:"lab_results"`
}

type seedRecord struct {
	ID                 string `yaml:"id"`
	RecordType         string `yaml:"record_type"`
	SensitivityLevel   int    `yaml:"sensitivity_level"`
	RequiredClearance  int    `yaml:"required_clearance_level"`
	RequiredDepartment string `yaml:"required_department"`
	PatientConsent     *bool  `yaml:"patient_consent"`
	Diagnosis          string `yaml:"diagnosis"`
	TreatmentPlan      string `yaml:"treatment_plan"`
	Medications        string `yaml:"medications"`
	Notes              string `yaml:"notes"`
}

type seedReport struct {
	ID                string `yaml:"id"`
	ReportType        string `yaml:"report_type"`
	Title             string `yaml:"title"`
	Description       string `yaml:"description"`
	Findings          string `yaml:"findings"`
	SensitivityLevel  int    `yaml:"sensitivity_level"`
	RequiredClearance int    `yaml:"required_clearance_level"`
}

type seedLab struct {
	ID                string `yaml:"id"`
	TestName          string `yaml:"test_name"`
	TestDate          string `yaml:"test_date"`
	ResultValue       string `yaml:"result_value"`
	NormalRange       string `yaml:"normal_range"`
	Unit              string `yaml:"unit"`
	IsAbnormal        bool   `yaml:"is_abnormal"`
	Remarks           string `yaml:"remarks"`
	SensitivityLevel  int    `yaml:"sensitivity_level"`
	RequiredClearance int    `yaml:"required_clearance_level"`
}

// LoadSeedFile reads principals, patients and their records from a YAML file
func LoadSeedFile(path string) (*MemoryDirectory, *MemoryRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed builds a directory and repository from YAML seed data
func ParseSeed(data []byte) (*MemoryDirectory, *MemoryRepository, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, nil, fmt.Errorf("failed to parse seed data: %w", err)
	}

	dir := NewMemoryDirectory()
	for _, sp := range seed.Principals {
		p, err := sp.principal()
		if err != nil {
			return nil, nil, err
		}
		dir.Put(p)
	}

	repo := NewMemoryRepository()
	for _, sp := range seed.Patients {
		if sp.ID == "" {
			return nil, nil, fmt.Errorf("patient without id in seed data")
		}
		repo.AddPatient(&sp.Patient)

		for _, rec := range sp.Records {
			consent := true
			if rec.PatientConsent != nil {
				consent = *rec.PatientConsent
			}
			repo.AddResource(sp.ID, types.ResourceEHR, &types.ClinicalRecord{
				ID:                 rec.ID,
				PatientID:          sp.ID,
				RecordType:         rec.RecordType,
				SensitivityLevel:   rec.SensitivityLevel,
				RequiredClearance:  rec.RequiredClearance,
				RequiredDepartment: rec.RequiredDepartment,
				PatientConsent:     consent,
				Diagnosis:          rec.Diagnosis,
				TreatmentPlan:      rec.TreatmentPlan,
				Medications:        rec.Medications,
				Notes:              rec.Notes,
			})
		}
		for _, rep := range sp.Reports {
			repo.AddResource(sp.ID, types.ResourceReport, &types.MedicalReport{
				ID:                rep.ID,
				PatientID:         sp.ID,
				ReportType:        rep.ReportType,
				Title:             rep.Title,
				Description:       rep.Description,
				Findings:          rep.Findings,
				SensitivityLevel:  rep.SensitivityLevel,
				RequiredClearance: rep.RequiredClearance,
			})
		}
		for _, lab := range sp.LabResults {
			repo.AddResource(sp.ID, types.ResourceLab, &types.LabResult{
				ID:                lab.ID,
				PatientID:         sp.ID,
				TestName:          lab.TestName,
				TestDate:          lab.TestDate,
				ResultValue:       lab.ResultValue,
				NormalRange:       lab.NormalRange,
				Unit:              lab.Unit,
				IsAbnormal:        lab.IsAbnormal,
				Remarks:           lab.Remarks,
				SensitivityLevel:  lab.SensitivityLevel,
				RequiredClearance: lab.RequiredClearance,
			})
		}
	}
	return dir, repo, nil
}

func (sp seedPrincipal) principal() (*types.Principal, error) {
	if sp.ID == "" {
		return nil, fmt.Errorf("principal without id in seed data")
	}
	role := types.Role(sp.Role)
	if !role.IsValid() {
		return nil, fmt.Errorf("principal %s has unknown role %q", sp.ID, sp.Role)
	}

	p := &types.Principal{
		ID:                    sp.ID,
		Username:              sp.Username,
		Role:                  role,
		Department:            sp.Department,
		Specialization:        sp.Specialization,
		Certifications:        sp.Certifications,
		ClearanceLevel:        sp.ClearanceLevel,
		IsEmergencyAuthorized: sp.IsEmergencyAuthorized,
		CurrentLocation:       sp.CurrentLocation,
	}
	if p.ClearanceLevel == 0 {
		p.ClearanceLevel = types.MinLevel
	}

	if sp.WorkingHoursStart != "" || sp.WorkingHoursEnd != "" {
		start, err := types.ParseClockTime(sp.WorkingHoursStart)
		if err != nil {
			return nil, fmt.Errorf("principal %s: %w", sp.ID, err)
		}
		end, err := types.ParseClockTime(sp.WorkingHoursEnd)
		if err != nil {
			return nil, fmt.Errorf("principal %s: %w", sp.ID, err)
		}
		p.WorkingHours = &types.WorkingHours{Start: start, End: end}
	}
	return p, nil
}
