package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrVisitNotFound is returned by read paths for an unknown visit.
var ErrVisitNotFound = errors.New("visit not found")

// ErrPatientNotFound is returned by read paths for an unknown patient.
var ErrPatientNotFound = errors.New("patient not found")

// StoreTranscript attaches the transcript to the patient's latest visit.
func (s *Store) StoreTranscript(ctx context.Context, patientID, transcript string) error {
	return s.mutateLastVisit(ctx, patientID, func(v *Visit) {
		v.Transcript = transcript
	})
}

// StoreSOAPSummary attaches the SOAP note to the patient's latest visit.
func (s *Store) StoreSOAPSummary(ctx context.Context, patientID string, soap map[string]any) error {
	return s.mutateLastVisit(ctx, patientID, func(v *Visit) {
		v.SOAPSummary = bson.M(soap)
	})
}

// NoteState returns the transcript and SOAP summary from the latest
// visit; both empty when the patient has no visits yet.
func (s *Store) NoteState(ctx context.Context, patientID string) (string, map[string]any, error) {
	var doc struct {
		Visits []Visit `bson:"visits"`
	}
	err := s.patients.FindOne(ctx,
		bson.M{"patient_id": patientID},
		options.FindOne().SetProjection(bson.M{"_id": 0, "visits": bson.M{"$slice": -1}}),
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", map[string]any{}, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("load note state: %w", err)
	}
	if len(doc.Visits) == 0 {
		return "", map[string]any{}, nil
	}

	v := doc.Visits[0]
	soap := map[string]any(v.SOAPSummary)
	if soap == nil {
		soap = map[string]any{}
	}
	return v.Transcript, soap, nil
}

// StartConsultation marks the visit's consultation in progress,
// creating patient and visit skeletons when missing.
func (s *Store) StartConsultation(ctx context.Context, patientID, visitID string) error {
	return s.mutateVisit(ctx, patientID, visitID, func(v *Visit) {
		c := v.Consultation
		if c == nil {
			c = &Consultation{Notes: []Note{}}
		}
		c.Status = "in-progress"
		if c.StartedAt == nil {
			now := time.Now().UTC()
			c.StartedAt = &now
		}
		v.Consultation = c
	})
}

// AddConsultationNote appends a timestamped note to the visit.
func (s *Store) AddConsultationNote(ctx context.Context, patientID, visitID, text string) error {
	return s.mutateVisit(ctx, patientID, visitID, func(v *Visit) {
		c := v.Consultation
		if c == nil {
			c = &Consultation{Notes: []Note{}}
		}
		c.Notes = append(c.Notes, Note{Text: text, CreatedAt: time.Now().UTC()})
		c.Status = "in-progress"
		v.Consultation = c
	})
}

// CompleteConsultation closes out the visit's consultation.
func (s *Store) CompleteConsultation(ctx context.Context, patientID, visitID, summary string) error {
	return s.mutateVisit(ctx, patientID, visitID, func(v *Visit) {
		c := v.Consultation
		if c == nil {
			c = &Consultation{Notes: []Note{}}
		}
		c.Status = "completed"
		now := time.Now().UTC()
		c.CompletedAt = &now
		if summary != "" {
			c.Summary = summary
		}
		v.Consultation = c
	})
}

// GetConsultation reads the consultation sub-document for a visit.
// A visit without one reports status "not-started".
func (s *Store) GetConsultation(ctx context.Context, patientID, visitID string) (*Consultation, error) {
	var rec PatientRecord
	err := s.patients.FindOne(ctx, bson.M{"patient_id": patientID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	for _, v := range rec.Visits {
		if v.VisitID == visitID {
			if v.Consultation == nil {
				return &Consultation{Status: "not-started", Notes: []Note{}}, nil
			}
			c := *v.Consultation
			if c.Notes == nil {
				c.Notes = []Note{}
			}
			return &c, nil
		}
	}
	return nil, ErrVisitNotFound
}

// mutateVisit loads the patient, mutates the matching visit, and
// writes the whole visits array back. Patient and visit are created
// when missing. Single-writer-per-visit is assumed, as with sessions.
func (s *Store) mutateVisit(ctx context.Context, patientID, visitID string, mutate func(*Visit)) error {
	rec, err := s.ensurePatient(ctx, patientID)
	if err != nil {
		return err
	}

	found := false
	for i := range rec.Visits {
		if rec.Visits[i].VisitID == visitID {
			mutate(&rec.Visits[i])
			found = true
			break
		}
	}
	if !found {
		v := Visit{VisitID: visitID, CreatedAt: time.Now().UTC()}
		mutate(&v)
		rec.Visits = append(rec.Visits, v)
	}

	if _, err := s.patients.UpdateOne(ctx,
		bson.M{"patient_id": patientID},
		bson.M{"$set": bson.M{"visits": rec.Visits}},
	); err != nil {
		return fmt.Errorf("write visits: %w", err)
	}
	return nil
}

// mutateLastVisit mutates the most recent visit; a patient with no
// visits gets one created, so a transcript is never dropped.
func (s *Store) mutateLastVisit(ctx context.Context, patientID string, mutate func(*Visit)) error {
	rec, err := s.ensurePatient(ctx, patientID)
	if err != nil {
		return err
	}

	if len(rec.Visits) == 0 {
		rec.Visits = append(rec.Visits, Visit{
			VisitID:   s.nextVisitID(ctx, patientID),
			CreatedAt: time.Now().UTC(),
		})
	}
	mutate(&rec.Visits[len(rec.Visits)-1])

	if _, err := s.patients.UpdateOne(ctx,
		bson.M{"patient_id": patientID},
		bson.M{"$set": bson.M{"visits": rec.Visits}},
	); err != nil {
		return fmt.Errorf("write visits: %w", err)
	}
	return nil
}

func (s *Store) ensurePatient(ctx context.Context, patientID string) (*PatientRecord, error) {
	var rec PatientRecord
	err := s.patients.FindOne(ctx, bson.M{"patient_id": patientID}).Decode(&rec)
	if err == nil {
		return &rec, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	rec = PatientRecord{
		PatientID: patientID,
		Visits:    []Visit{},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.patients.InsertOne(ctx, &rec); err != nil {
		return nil, fmt.Errorf("insert patient skeleton: %w", err)
	}
	return &rec, nil
}
