package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// EmergencyTokenHeader carries an emergency token id as an alternative to
// the token_id query parameter
const EmergencyTokenHeader = "X-Emergency-Token"

// deniedFields are the descriptive fields shown for a denied record
var deniedFields = map[string]bool{
	"record_type": true,
	"report_type": true,
	"title":       true,
	"test_name":   true,
}

// listPatientsHandler lists basic, non-clinical patient information
func (s *Server) listPatientsHandler(w http.ResponseWriter, r *http.Request) {
	patients, err := s.repository.Patients(r.Context())
	if err != nil {
		s.logger.Error("Failed to list patients", zap.Error(err))
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, PatientListResponse{
		Count:    len(patients),
		Patients: patients,
	})
}

// recordsHandler serves one patient's records of a given type. Every record
// gets its own decision; denied records are listed without clinical content.
func (s *Server) recordsHandler(resourceType types.ResourceType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, err := GetPrincipal(ctx)
		if err != nil {
			respondUnauthorized(w, err.Error())
			return
		}

		patientID := mux.Vars(r)["patientID"]
		patient, err := s.repository.Patient(ctx, patientID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resources, err := s.repository.Resources(ctx, patientID, resourceType)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		query := r.URL.Query()
		isEmergency := query.Get("emergency") == "true"
		tokenID := query.Get("token_id")
		if tokenID == "" {
			tokenID = r.Header.Get(EmergencyTokenHeader)
		}

		hasToken := false
		if tokenID != "" {
			hasToken = s.engine.UpgradeForResource(ctx, principal.ID, patientID, tokenID, resourceType)
			if hasToken {
				isEmergency = true
			}
		}

		requests := make([]*types.AccessRequest, len(resources))
		for i, res := range resources {
			requests[i] = &types.AccessRequest{
				Principal:    principal,
				ResourceType: resourceType,
				Resource:     res,
				IsEmergency:  isEmergency,
				Location:     query.Get("location"),
			}
		}
		decisions := s.engine.DecideAll(ctx, requests)

		resp := RecordsResponse{
			Patient:           patient,
			ResourceType:      resourceType,
			IsEmergency:       isEmergency,
			HasEmergencyToken: hasToken,
			Accessible:        []AccessibleResource{},
			Denied:            []DeniedResource{},
		}
		for i, d := range decisions {
			if d.AccessGranted {
				resp.Accessible = append(resp.Accessible, AccessibleResource{
					Resource: resources[i],
					Decision: GrantedDecision{
						Granted:      true,
						ChecksPassed: d.PassedDescriptions(),
					},
				})
				continue
			}
			resp.Denied = append(resp.Denied, deniedResource(resources[i].View(), d))
		}
		resp.Summary = AccessSummary{
			Total:      len(resources),
			Accessible: len(resp.Accessible),
			Denied:     len(resp.Denied),
		}

		s.logger.Debug("Records view",
			zap.String("principal", principal.ID),
			zap.String("patient_id", patientID),
			zap.String("resource_type", string(resourceType)),
			zap.Bool("emergency", isEmergency),
			zap.Int("accessible", resp.Summary.Accessible),
			zap.Int("denied", resp.Summary.Denied),
		)
		WriteJSON(w, http.StatusOK, resp)
	}
}

func deniedResource(view types.ResourceView, d *types.Decision) DeniedResource {
	var fields map[string]string
	for k, v := range view.Fields {
		if !deniedFields[k] {
			continue
		}
		if fields == nil {
			fields = make(map[string]string)
		}
		fields[k] = v
	}
	reasons := d.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return DeniedResource{
		ID:               view.ID,
		SensitivityLevel: view.SensitivityLevel,
		Fields:           fields,
		Decision: DeniedDecision{
			Granted:      false,
			ChecksFailed: d.FailedDescriptions(),
			Reasons:      reasons,
		},
	}
}
