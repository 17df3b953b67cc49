package api

import (
	"net/http"

	"github.com/hackgods/clinic-care-scheduling/internal/care"
)

func parseEvaluation(w http.ResponseWriter, r *http.Request, req EvaluationRequest) (care.Evaluation, bool) {
	eval := care.Evaluation{
		Reason:              req.Reason,
		Recommendations:     req.Recommendations,
		FollowUpRecommended: req.FollowUpRecommended,
	}
	if req.FinalAssessment != nil && *req.FinalAssessment != "" {
		a, err := care.ParseAssessment(*req.FinalAssessment)
		if err != nil {
			writeServiceError(w, r, err)
			return care.Evaluation{}, false
		}
		eval.FinalAssessment = &a
	}
	followUp, ok := parseOptionalDate(w, r, req.FollowUpDate)
	if !ok {
		return care.Evaluation{}, false
	}
	eval.FollowUpDate = followUp
	return eval, true
}

func createAssignmentHandler(svc CareService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAssignmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		patientID, ok := parseUUIDField(w, "patient_id", req.PatientID)
		if !ok {
			return
		}
		primaryID, ok := parseUUIDField(w, "primary_professional_id", req.PrimaryProfessionalID)
		if !ok {
			return
		}
		internID, ok := parseOptionalUUID(w, "intern_id", req.InternID)
		if !ok {
			return
		}

		a, err := svc.CreateAssignment(r.Context(), ActorFrom(r.Context()), care.NewAssignment{
			PatientID:             patientID,
			PrimaryProfessionalID: primaryID,
			InternID:              internID,
			Notes:                 req.Notes,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAssignmentResponse(a))
	}
}

func finalizeAssignmentHandler(svc CareService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req FinalizeAssignmentRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}

		a, err := svc.FinalizeAssignment(r.Context(), ActorFrom(r.Context()), id, req.Reason)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAssignmentResponse(a))
	}
}

func getAssignmentHandler(svc CareService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		a, err := svc.GetAssignment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAssignmentResponse(a))
	}
}

func activeAssignmentHandler(svc CareService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := pathID(w, r)
		if !ok {
			return
		}

		a, err := svc.GetActiveAssignment(r.Context(), patientID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAssignmentResponse(a))
	}
}

func proposeDischargeHandler(svc CareService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProposeDischargeRequest
		if !decodeBody(w, r, &req) {
			return
		}

		patientID, ok := parseUUIDField(w, "patient_id", req.PatientID)
		if !ok {
			return
		}
		typ, err := care.ParseDischargeType(req.Type)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		eval, ok := parseEvaluation(w, r, req.EvaluationRequest)
		if !ok {
			return
		}

		d, err := svc.Propose(r.Context(), ActorFrom(r.Context()), patientID, typ, eval)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toDischargeResponse(d))
	}
}

func approveDischargeHandler(svc CareService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req ApproveDischargeRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}

		// An empty type keeps the proposed one.
		var typ care.DischargeType
		if req.Type != "" {
			var err error
			if typ, err = care.ParseDischargeType(req.Type); err != nil {
				writeServiceError(w, r, err)
				return
			}
		}
		eval, ok := parseEvaluation(w, r, req.EvaluationRequest)
		if !ok {
			return
		}

		d, err := svc.Approve(r.Context(), ActorFrom(r.Context()), id, typ, eval)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toDischargeResponse(d))
	}
}

func rejectDischargeHandler(svc CareService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req RejectDischargeRequest
		if !decodeBody(w, r, &req) {
			return
		}

		d, err := svc.Reject(r.Context(), ActorFrom(r.Context()), id, req.Reason)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toDischargeResponse(d))
	}
}

func directDischargeHandler(svc CareService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DirectDischargeRequest
		if !decodeBody(w, r, &req) {
			return
		}

		patientID, ok := parseUUIDField(w, "patient_id", req.PatientID)
		if !ok {
			return
		}
		typ, err := care.ParseDischargeType(req.Type)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		eval, ok := parseEvaluation(w, r, req.EvaluationRequest)
		if !ok {
			return
		}

		d, err := svc.DirectDischarge(r.Context(), ActorFrom(r.Context()), patientID, typ, eval)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toDischargeResponse(d))
	}
}

func getDischargeHandler(svc CareService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		d, err := svc.GetDischarge(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toDischargeResponse(d))
	}
}

func listDischargesHandler(svc CareService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var f care.DischargeFilter
		if raw := q.Get("patient_id"); raw != "" {
			id, ok := parseUUIDField(w, "patient_id", raw)
			if !ok {
				return
			}
			f.PatientID = &id
		}
		if raw := q.Get("status"); raw != "" {
			s, err := care.ParseDischargeStatus(raw)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			f.Status = &s
		}
		if raw := q.Get("type"); raw != "" {
			t, err := care.ParseDischargeType(raw)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			f.Type = &t
		}
		var ok bool
		if f.From, ok = parseOptionalDate(w, r, optionalQuery(q.Get("from"))); !ok {
			return
		}
		if f.To, ok = parseOptionalDate(w, r, optionalQuery(q.Get("to"))); !ok {
			return
		}
		if f.Limit, ok = queryInt(w, r, "limit", 0); !ok {
			return
		}
		if f.Offset, ok = queryInt(w, r, "offset", 0); !ok {
			return
		}

		list, err := svc.ListDischarges(r.Context(), f)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := make([]DischargeResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toDischargeResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func optionalQuery(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
