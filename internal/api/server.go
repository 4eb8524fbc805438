// Package api exposes the intake and consultation operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinic-ai/clinicd/internal/events"
	"github.com/clinic-ai/clinicd/internal/intake"
	"github.com/clinic-ai/clinicd/internal/store"
)

// PatientRegistry is the slice of the patient store the intake routes need.
type PatientRegistry interface {
	CreateOrGetPatient(ctx context.Context, info store.PatientInfo) (*store.PatientRecord, bool, error)
	RegisterVisit(ctx context.Context, info store.PatientInfo) (patientID, visitID string, isNew bool, err error)
}

// ConsultationService is the consultation flow consumed by the routes.
type ConsultationService interface {
	TranscribeFromURL(ctx context.Context, patientID, audioURL string) (string, error)
	GenerateSOAP(ctx context.Context, patientID string) (map[string]any, error)
	NoteState(ctx context.Context, patientID string) (string, map[string]any, error)
	Start(ctx context.Context, patientID, visitID string) error
	AddNote(ctx context.Context, patientID, visitID, text string) error
	Complete(ctx context.Context, patientID, visitID, summary string) error
	Get(ctx context.Context, patientID, visitID string) (*store.Consultation, error)
}

type Server struct {
	router      *chi.Mux
	port        int
	engine      *intake.Engine
	registry    PatientRegistry
	consult     ConsultationService
	publisher   *events.Publisher
	phoneRegion string
	logger      *slog.Logger
}

func NewServer(port int, engine *intake.Engine, registry PatientRegistry, consult ConsultationService, publisher *events.Publisher, phoneRegion string, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware)

	s := &Server{
		router:      router,
		port:        port,
		engine:      engine,
		registry:    registry,
		consult:     consult,
		publisher:   publisher,
		phoneRegion: phoneRegion,
		logger:      logger,
	}

	router.Get("/health", s.health)
	router.Route("/intake", func(r chi.Router) {
		r.Post("/patient-info", s.patientInfo)
		r.Post("/register", s.register)
		r.Post("/start-session", s.startSession)
		r.Get("/next-question", s.nextQuestion)
		r.Post("/submit-answer", s.submitAnswer)
		r.Get("/state", s.sessionState)
	})
	router.Route("/consultation", func(r chi.Router) {
		r.Post("/transcribe", s.transcribe)
		r.Post("/soap", s.generateSOAP)
		r.Get("/state", s.noteState)
		r.Post("/start", s.startConsultation)
		r.Post("/note", s.addNote)
		r.Post("/complete", s.completeConsultation)
		r.Get("/{patient_id}/{visit_id}", s.getConsultation)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// Frontend is served from a different origin, as in the original deployment.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Authorization")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
