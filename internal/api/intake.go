package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinic-ai/clinicd/internal/events"
	"github.com/clinic-ai/clinicd/internal/intake"
	"github.com/clinic-ai/clinicd/internal/phone"
	"github.com/clinic-ai/clinicd/internal/store"
)

func (s *Server) decodePatientInfo(w http.ResponseWriter, r *http.Request) (store.PatientInfo, bool) {
	var info store.PatientInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return info, false
	}
	if info.Name == "" || info.Mobile == "" {
		writeError(w, http.StatusBadRequest, "name and mobile are required")
		return info, false
	}
	if info.Age <= 0 {
		writeError(w, http.StatusBadRequest, "age must be positive")
		return info, false
	}
	info.Mobile = phone.Normalize(info.Mobile, s.phoneRegion)
	return info, true
}

// patientInfo creates a patient record, or returns the existing one
// for the same (name, mobile).
func (s *Server) patientInfo(w http.ResponseWriter, r *http.Request) {
	info, ok := s.decodePatientInfo(w, r)
	if !ok {
		return
	}

	rec, _, err := s.registry.CreateOrGetPatient(r.Context(), info)
	if err != nil {
		s.logger.Error("patient creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create patient")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type registerResponse struct {
	PatientID    string `json:"patient_id"`
	VisitID      string `json:"visit_id"`
	IsNewPatient bool   `json:"is_new_patient"`
}

// register creates or reuses the patient and always opens a new visit.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	info, ok := s.decodePatientInfo(w, r)
	if !ok {
		return
	}

	patientID, visitID, isNew, err := s.registry.RegisterVisit(r.Context(), info)
	if err != nil {
		s.logger.Error("visit registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register visit")
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{
		PatientID:    patientID,
		VisitID:      visitID,
		IsNewPatient: isNew,
	})
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	patientID := r.URL.Query().Get("patient_id")
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "patient_id is required")
		return
	}

	sessionID := s.engine.StartSession(patientID)
	if err := s.publisher.Publish(events.SubjectSessionStarted, map[string]string{
		"session_id": sessionID,
		"patient_id": patientID,
	}); err != nil {
		s.logger.Warn("failed to publish session started event", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}

type nextQuestionResponse struct {
	NextQuestion *intake.Question `json:"next_question"`
	Completed    bool             `json:"completed"`
}

func (s *Server) nextQuestion(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	q, err := s.engine.NextQuestion(r.Context(), sessionID)
	if err != nil {
		s.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nextQuestionResponse{NextQuestion: q, Completed: q == nil})
}

type answerSubmission struct {
	Value string `json:"value"`
}

func (s *Server) submitAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	var body answerSubmission
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.engine.SubmitAnswer(r.Context(), sessionID, body.Value)
	if err != nil {
		s.sessionError(w, err)
		return
	}

	if res.Completed {
		if err := s.publisher.Publish(events.SubjectSessionCompleted, map[string]string{
			"session_id": sessionID,
		}); err != nil {
			s.logger.Warn("failed to publish session completed event", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) sessionState(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	snap, err := s.engine.State(sessionID)
	if err != nil {
		s.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, intake.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "invalid session_id")
		return
	}
	s.logger.Error("intake operation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
