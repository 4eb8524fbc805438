// Package consultation handles the post-intake flow: consultation
// audio transcription, SOAP note generation, and the doctor's notes
// on a visit.
package consultation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clinic-ai/clinicd/internal/events"
	"github.com/clinic-ai/clinicd/internal/openai"
	"github.com/clinic-ai/clinicd/internal/store"
)

const soapSystemPrompt = "You're an AI that writes SOAP summaries for doctors."

const soapPromptFormat = "You are a clinical assistant. Given this doctor-patient consultation transcript, " +
	"create a SOAP note (Subjective, Objective, Assessment, Plan) in JSON format. " +
	"Keep it short and structured.\n\nTranscript:\n%s"

// VisitStore is the slice of the patient store this package needs.
type VisitStore interface {
	StoreTranscript(ctx context.Context, patientID, transcript string) error
	StoreSOAPSummary(ctx context.Context, patientID string, soap map[string]any) error
	NoteState(ctx context.Context, patientID string) (string, map[string]any, error)
	StartConsultation(ctx context.Context, patientID, visitID string) error
	AddConsultationNote(ctx context.Context, patientID, visitID, text string) error
	CompleteConsultation(ctx context.Context, patientID, visitID, summary string) error
	GetConsultation(ctx context.Context, patientID, visitID string) (*store.Consultation, error)
}

// ErrNoTranscript is returned when SOAP generation is requested before
// any transcript was stored for the patient's latest visit.
var ErrNoTranscript = fmt.Errorf("transcript not found for this visit")

type Service struct {
	store        VisitStore
	llm          *openai.Client
	whisperModel string
	downloader   *http.Client
	publisher    *events.Publisher
	logger       *slog.Logger
}

func NewService(store VisitStore, llm *openai.Client, whisperModel string, publisher *events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:        store,
		llm:          llm,
		whisperModel: whisperModel,
		downloader:   &http.Client{Timeout: 10 * time.Second},
		publisher:    publisher,
		logger:       logger,
	}
}

// TranscribeFromURL downloads consultation audio, transcribes it, and
// stores the transcript on the patient's latest visit.
func (s *Service) TranscribeFromURL(ctx context.Context, patientID, audioURL string) (string, error) {
	s.logger.Info("transcribing consultation audio", "patient_id", patientID, "audio_url", audioURL)

	audio, err := s.download(ctx, audioURL)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}

	transcript, err := s.llm.Transcribe(ctx, s.whisperModel, "consultation.mp3", audio)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}

	if err := s.store.StoreTranscript(ctx, patientID, transcript); err != nil {
		return "", fmt.Errorf("store transcript: %w", err)
	}

	if err := s.publisher.Publish(events.SubjectTranscriptStored, map[string]any{
		"patient_id":     patientID,
		"transcript_len": len(transcript),
	}); err != nil {
		s.logger.Warn("failed to publish transcript event", "error", err)
	}

	s.logger.Info("transcript stored", "patient_id", patientID, "transcript_len", len(transcript))
	return transcript, nil
}

func (s *Service) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.downloader.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// GenerateSOAP builds a SOAP note from the latest stored transcript.
// Model output that is not valid JSON is stored under raw_text rather
// than discarded.
func (s *Service) GenerateSOAP(ctx context.Context, patientID string) (map[string]any, error) {
	transcript, _, err := s.store.NoteState(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load note state: %w", err)
	}
	if transcript == "" {
		return nil, ErrNoTranscript
	}

	messages := []openai.Message{
		{Role: "system", Content: soapSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(soapPromptFormat, transcript)},
	}
	raw, err := s.llm.ChatCompletion(ctx, messages, 0.4, 500)
	if err != nil {
		return nil, fmt.Errorf("soap completion: %w", err)
	}

	soap := parseSOAP(raw)
	if err := s.store.StoreSOAPSummary(ctx, patientID, soap); err != nil {
		return nil, fmt.Errorf("store soap summary: %w", err)
	}

	if err := s.publisher.Publish(events.SubjectSOAPGenerated, map[string]any{
		"patient_id": patientID,
	}); err != nil {
		s.logger.Warn("failed to publish soap event", "error", err)
	}

	s.logger.Info("soap summary generated", "patient_id", patientID)
	return soap, nil
}

func parseSOAP(raw string) map[string]any {
	text := strings.TrimSpace(raw)

	var soap map[string]any
	if err := json.Unmarshal([]byte(text), &soap); err == nil {
		return soap
	}
	// Models sometimes fence the JSON; strip one layer of markdown.
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start != -1 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &soap); err == nil {
			return soap
		}
	}
	return map[string]any{"raw_text": text}
}

// Start marks the consultation for a visit as in progress.
func (s *Service) Start(ctx context.Context, patientID, visitID string) error {
	return s.store.StartConsultation(ctx, patientID, visitID)
}

// AddNote records a doctor's note against the visit.
func (s *Service) AddNote(ctx context.Context, patientID, visitID, text string) error {
	return s.store.AddConsultationNote(ctx, patientID, visitID, text)
}

// Complete closes the consultation with an optional summary.
func (s *Service) Complete(ctx context.Context, patientID, visitID, summary string) error {
	return s.store.CompleteConsultation(ctx, patientID, visitID, summary)
}

// NoteState returns the latest visit's transcript and SOAP summary.
func (s *Service) NoteState(ctx context.Context, patientID string) (string, map[string]any, error) {
	return s.store.NoteState(ctx, patientID)
}

// Get reads the consultation state for a visit.
func (s *Service) Get(ctx context.Context, patientID, visitID string) (*store.Consultation, error) {
	return s.store.GetConsultation(ctx, patientID, visitID)
}
