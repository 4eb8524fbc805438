package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clinic-ai/clinicd/internal/consultation"
	"github.com/clinic-ai/clinicd/internal/store"
)

type transcribeRequest struct {
	PatientID string `json:"patient_id"`
	AudioURL  string `json:"audio_url"`
}

func (s *Server) transcribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PatientID == "" || req.AudioURL == "" {
		writeError(w, http.StatusBadRequest, "patient_id and audio_url are required")
		return
	}

	transcript, err := s.consult.TranscribeFromURL(r.Context(), req.PatientID, req.AudioURL)
	if err != nil {
		s.logger.Error("transcription failed", "patient_id", req.PatientID, "error", err)
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"patient_id": req.PatientID,
		"transcript": transcript,
		"message":    "transcript saved successfully",
	})
}

type soapRequest struct {
	PatientID string `json:"patient_id"`
}

func (s *Server) generateSOAP(w http.ResponseWriter, r *http.Request) {
	var req soapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PatientID == "" {
		writeError(w, http.StatusBadRequest, "patient_id is required")
		return
	}

	soap, err := s.consult.GenerateSOAP(r.Context(), req.PatientID)
	if err != nil {
		if errors.Is(err, consultation.ErrNoTranscript) {
			writeError(w, http.StatusNotFound, "transcript not found for this visit")
			return
		}
		s.logger.Error("soap generation failed", "patient_id", req.PatientID, "error", err)
		writeError(w, http.StatusBadGateway, "soap generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"soap_summary": soap})
}

func (s *Server) noteState(w http.ResponseWriter, r *http.Request) {
	patientID := r.URL.Query().Get("patient_id")
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "patient_id is required")
		return
	}

	transcript, soap, err := s.consult.NoteState(r.Context(), patientID)
	if err != nil {
		s.logger.Error("note state load failed", "patient_id", patientID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transcript":   transcript,
		"soap_summary": soap,
	})
}

type visitRequest struct {
	PatientID string `json:"patient_id"`
	VisitID   string `json:"visit_id"`
	Text      string `json:"text,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

func (s *Server) decodeVisitRequest(w http.ResponseWriter, r *http.Request) (visitRequest, bool) {
	var req visitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if req.PatientID == "" || req.VisitID == "" {
		writeError(w, http.StatusBadRequest, "patient_id and visit_id are required")
		return req, false
	}
	return req, true
}

func (s *Server) startConsultation(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeVisitRequest(w, r)
	if !ok {
		return
	}
	if err := s.consult.Start(r.Context(), req.PatientID, req.VisitID); err != nil {
		s.logger.Error("consultation start failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Consultation started"})
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeVisitRequest(w, r)
	if !ok {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if err := s.consult.AddNote(r.Context(), req.PatientID, req.VisitID, req.Text); err != nil {
		s.logger.Error("note add failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Note added"})
}

func (s *Server) completeConsultation(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeVisitRequest(w, r)
	if !ok {
		return
	}
	if err := s.consult.Complete(r.Context(), req.PatientID, req.VisitID, req.Summary); err != nil {
		s.logger.Error("consultation complete failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Consultation completed"})
}

func (s *Server) getConsultation(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patient_id")
	visitID := chi.URLParam(r, "visit_id")

	c, err := s.consult.Get(r.Context(), patientID, visitID)
	if err != nil {
		if errors.Is(err, store.ErrPatientNotFound) {
			writeError(w, http.StatusNotFound, "patient not found")
			return
		}
		if errors.Is(err, store.ErrVisitNotFound) {
			writeError(w, http.StatusNotFound, "visit not found")
			return
		}
		s.logger.Error("consultation load failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"patient_id":   patientID,
		"visit_id":     visitID,
		"consultation": c,
	})
}
