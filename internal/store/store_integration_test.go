//go:build integration

package store

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/clinic-ai/clinicd/internal/intake"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, uri, "clinicd_test_"+strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		_ = s.db.Drop(ctx)
		_ = s.Close(ctx)
	})
	return s
}

func testInfo(name, mobile string) PatientInfo {
	return PatientInfo{Name: name, Age: 35, Gender: "Male", Mobile: mobile}
}

func TestCreateOrGetPatient_Dedupe(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first, created, err := s.CreateOrGetPatient(ctx, testInfo("John Doe", "+919876543210"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Error("expected created=true for new patient")
	}
	if !strings.HasPrefix(first.PatientID, "CLINIC01-") {
		t.Errorf("unexpected patient id format: %q", first.PatientID)
	}

	second, created, err := s.CreateOrGetPatient(ctx, testInfo("John Doe", "+919876543210"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if created {
		t.Error("expected created=false for existing patient")
	}
	if second.PatientID != first.PatientID {
		t.Errorf("dedupe failed: %q vs %q", second.PatientID, first.PatientID)
	}
}

func TestRegisterVisit_ReusesPatient(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	pid1, vid1, isNew, err := s.RegisterVisit(ctx, testInfo("Jane Roe", "+919812345678"))
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	if !isNew {
		t.Error("expected new patient on first register")
	}
	if !strings.HasPrefix(vid1, "V") {
		t.Errorf("unexpected visit id format: %q", vid1)
	}

	pid2, vid2, isNew, err := s.RegisterVisit(ctx, testInfo("Jane Roe", "+919812345678"))
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if isNew {
		t.Error("expected reuse on second register")
	}
	if pid2 != pid1 {
		t.Errorf("patient id changed: %q vs %q", pid2, pid1)
	}
	if vid2 == vid1 {
		t.Errorf("expected a fresh visit id, got %q twice", vid1)
	}
}

func TestLookupAttributes(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec, _, err := s.CreateOrGetPatient(ctx, testInfo("Attr Test", "+919800000001"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	attrs, err := s.LookupAttributes(ctx, rec.PatientID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if attrs.Name != "Attr Test" || attrs.Age != 35 || attrs.Gender != "Male" {
		t.Errorf("unexpected attrs: %+v", attrs)
	}

	attrs, err = s.LookupAttributes(ctx, "CLINIC01-00000000-0000")
	if err != nil {
		t.Fatalf("lookup missing: %v", err)
	}
	if attrs != (intake.PatientAttrs{}) {
		t.Errorf("expected zero attrs for missing patient, got %+v", attrs)
	}
}

func TestTranscriptAndSOAPOnLatestVisit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	pid, _, _, err := s.RegisterVisit(ctx, testInfo("Soap Test", "+919800000002"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := s.StoreTranscript(ctx, pid, "doctor: how are you"); err != nil {
		t.Fatalf("store transcript: %v", err)
	}
	if err := s.StoreSOAPSummary(ctx, pid, map[string]any{"subjective": "headache"}); err != nil {
		t.Fatalf("store soap: %v", err)
	}

	transcript, soap, err := s.NoteState(ctx, pid)
	if err != nil {
		t.Fatalf("note state: %v", err)
	}
	if transcript != "doctor: how are you" {
		t.Errorf("unexpected transcript: %q", transcript)
	}
	if soap["subjective"] != "headache" {
		t.Errorf("unexpected soap: %v", soap)
	}
}

func TestConsultationLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	pid, vid, _, err := s.RegisterVisit(ctx, testInfo("Consult Test", "+919800000003"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	c, err := s.GetConsultation(ctx, pid, vid)
	if err != nil {
		t.Fatalf("get before start: %v", err)
	}
	if c.Status != "not-started" {
		t.Errorf("expected not-started, got %q", c.Status)
	}

	if err := s.StartConsultation(ctx, pid, vid); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.AddConsultationNote(ctx, pid, vid, "BP 120/80"); err != nil {
		t.Fatalf("note: %v", err)
	}
	if err := s.CompleteConsultation(ctx, pid, vid, "resolved"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	c, err = s.GetConsultation(ctx, pid, vid)
	if err != nil {
		t.Fatalf("get after complete: %v", err)
	}
	if c.Status != "completed" || c.Summary != "resolved" {
		t.Errorf("unexpected consultation: %+v", c)
	}
	if len(c.Notes) != 1 || c.Notes[0].Text != "BP 120/80" {
		t.Errorf("unexpected notes: %+v", c.Notes)
	}
	if c.StartedAt == nil || c.CompletedAt == nil {
		t.Error("expected timestamps set")
	}

	if _, err := s.GetConsultation(ctx, pid, "V00000000-00"); err != ErrVisitNotFound {
		t.Errorf("expected ErrVisitNotFound, got %v", err)
	}
	if _, err := s.GetConsultation(ctx, "nope", vid); err != ErrPatientNotFound {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
}
