package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clinic-ai/clinicd/internal/openai"
	"github.com/clinic-ai/clinicd/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	transcripts map[string]string
	soaps       map[string]map[string]any
	notes       []string
	started     bool
	completed   bool
	summary     string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		transcripts: make(map[string]string),
		soaps:       make(map[string]map[string]any),
	}
}

func (f *fakeStore) StoreTranscript(_ context.Context, patientID, transcript string) error {
	f.transcripts[patientID] = transcript
	return nil
}

func (f *fakeStore) StoreSOAPSummary(_ context.Context, patientID string, soap map[string]any) error {
	f.soaps[patientID] = soap
	return nil
}

func (f *fakeStore) NoteState(_ context.Context, patientID string) (string, map[string]any, error) {
	soap := f.soaps[patientID]
	if soap == nil {
		soap = map[string]any{}
	}
	return f.transcripts[patientID], soap, nil
}

func (f *fakeStore) StartConsultation(_ context.Context, _, _ string) error {
	f.started = true
	return nil
}

func (f *fakeStore) AddConsultationNote(_ context.Context, _, _, text string) error {
	f.notes = append(f.notes, text)
	return nil
}

func (f *fakeStore) CompleteConsultation(_ context.Context, _, _, summary string) error {
	f.completed = true
	f.summary = summary
	return nil
}

func (f *fakeStore) GetConsultation(_ context.Context, _, _ string) (*store.Consultation, error) {
	c := &store.Consultation{Status: "not-started", Notes: []store.Note{}}
	if f.started {
		c.Status = "in-progress"
	}
	if f.completed {
		c.Status = "completed"
		c.Summary = f.summary
	}
	for _, n := range f.notes {
		c.Notes = append(c.Notes, store.Note{Text: n})
	}
	return c, nil
}

// apiStub serves both the transcription and chat endpoints.
func apiStub(t *testing.T, transcript, chatContent string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/audio/transcriptions":
			json.NewEncoder(w).Encode(map[string]string{"text": transcript})
		case "/chat/completions":
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]string{"role": "assistant", "content": chatContent}},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestService(fs VisitStore, apiURL string) *Service {
	llm := openai.NewClient("test-key", "test-model")
	llm.SetTestTransport(apiURL)
	return NewService(fs, llm, "whisper-1", nil, discardLogger())
}

func TestTranscribeFromURL(t *testing.T) {
	audioServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-mp3-bytes"))
	}))
	defer audioServer.Close()

	api := apiStub(t, "patient describes chest pain", "")
	defer api.Close()

	fs := newFakeStore()
	svc := newTestService(fs, api.URL)

	transcript, err := svc.TranscribeFromURL(context.Background(), "CLINIC01-20250829-0001", audioServer.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transcript != "patient describes chest pain" {
		t.Errorf("unexpected transcript: %q", transcript)
	}
	if fs.transcripts["CLINIC01-20250829-0001"] != transcript {
		t.Error("transcript not stored")
	}
}

func TestTranscribeFromURL_DownloadFailure(t *testing.T) {
	audioServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer audioServer.Close()

	api := apiStub(t, "", "")
	defer api.Close()

	svc := newTestService(newFakeStore(), api.URL)

	_, err := svc.TranscribeFromURL(context.Background(), "p1", audioServer.URL)
	if err == nil {
		t.Fatal("expected error on download failure")
	}
	if !strings.Contains(err.Error(), "download audio") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGenerateSOAP_StructuredJSON(t *testing.T) {
	api := apiStub(t, "", `{"subjective":"headache for 3 days","objective":"afebrile","assessment":"tension headache","plan":"hydration, rest"}`)
	defer api.Close()

	fs := newFakeStore()
	fs.transcripts["p1"] = "doctor: what brings you in..."
	svc := newTestService(fs, api.URL)

	soap, err := svc.GenerateSOAP(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if soap["assessment"] != "tension headache" {
		t.Errorf("unexpected soap: %v", soap)
	}
	if fs.soaps["p1"] == nil {
		t.Error("soap not stored")
	}
}

func TestGenerateSOAP_FencedJSON(t *testing.T) {
	api := apiStub(t, "", "```json\n{\"subjective\":\"cough\"}\n```")
	defer api.Close()

	fs := newFakeStore()
	fs.transcripts["p1"] = "transcript"
	svc := newTestService(fs, api.URL)

	soap, err := svc.GenerateSOAP(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if soap["subjective"] != "cough" {
		t.Errorf("expected fenced JSON parsed, got %v", soap)
	}
}

func TestGenerateSOAP_NonJSONFallsBackToRawText(t *testing.T) {
	api := apiStub(t, "", "Subjective: headache. Objective: none.")
	defer api.Close()

	fs := newFakeStore()
	fs.transcripts["p1"] = "transcript"
	svc := newTestService(fs, api.URL)

	soap, err := svc.GenerateSOAP(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if soap["raw_text"] != "Subjective: headache. Objective: none." {
		t.Errorf("expected raw_text fallback, got %v", soap)
	}
}

func TestGenerateSOAP_NoTranscript(t *testing.T) {
	api := apiStub(t, "", "{}")
	defer api.Close()

	svc := newTestService(newFakeStore(), api.URL)

	_, err := svc.GenerateSOAP(context.Background(), "p1")
	if !errors.Is(err, ErrNoTranscript) {
		t.Fatalf("expected ErrNoTranscript, got %v", err)
	}
}

func TestNotesFlow(t *testing.T) {
	api := apiStub(t, "", "")
	defer api.Close()

	fs := newFakeStore()
	svc := newTestService(fs, api.URL)
	ctx := context.Background()

	if err := svc.Start(ctx, "p1", "v1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.AddNote(ctx, "p1", "v1", "BP 120/80"); err != nil {
		t.Fatalf("note: %v", err)
	}
	if err := svc.Complete(ctx, "p1", "v1", "all good"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if !fs.started || !fs.completed || fs.summary != "all good" {
		t.Errorf("lifecycle not recorded: %+v", fs)
	}
	if len(fs.notes) != 1 || fs.notes[0] != "BP 120/80" {
		t.Errorf("unexpected notes: %v", fs.notes)
	}
}
