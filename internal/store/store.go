// Package store persists patient records in MongoDB: one document per
// patient with an embedded visits array holding intake forms,
// transcripts, SOAP summaries, and consultation notes.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/clinic-ai/clinicd/internal/intake"
)

const patientsCollection = "clinicAi"

type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	patients *mongo.Collection
}

func New(ctx context.Context, uri, dbName string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	return &Store{
		client:   client,
		db:       db,
		patients: db.Collection(patientsCollection),
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// FindPatientByNameMobile dedupes on (name, mobile). A missing patient
// is (nil, nil), not an error.
func (s *Store) FindPatientByNameMobile(ctx context.Context, name, mobile string) (*PatientRecord, error) {
	var rec PatientRecord
	err := s.patients.FindOne(ctx, bson.M{
		"patient_info.name":   name,
		"patient_info.mobile": mobile,
	}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return &rec, nil
}

// CreateOrGetPatient returns the existing record for (name, mobile) or
// creates a fresh one with a counter-based patient id.
func (s *Store) CreateOrGetPatient(ctx context.Context, info PatientInfo) (*PatientRecord, bool, error) {
	existing, err := s.FindPatientByNameMobile(ctx, info.Name, info.Mobile)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	rec := &PatientRecord{
		PatientID: s.nextPatientID(ctx),
		Info:      info,
		Visits:    []Visit{},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.patients.InsertOne(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("insert patient: %w", err)
	}
	return rec, true, nil
}

// RegisterVisit creates or reuses the patient for (name, mobile),
// refreshes the stored personal info, and always appends a new visit
// carrying the intake form.
func (s *Store) RegisterVisit(ctx context.Context, info PatientInfo) (patientID, visitID string, isNew bool, err error) {
	existing, err := s.FindPatientByNameMobile(ctx, info.Name, info.Mobile)
	if err != nil {
		return "", "", false, err
	}

	now := time.Now().UTC()
	if existing == nil {
		isNew = true
		patientID = s.nextPatientID(ctx)
		rec := &PatientRecord{
			PatientID: patientID,
			Info:      info,
			Visits:    []Visit{},
			CreatedAt: now,
		}
		if _, err := s.patients.InsertOne(ctx, rec); err != nil {
			return "", "", false, fmt.Errorf("insert patient: %w", err)
		}
	} else {
		patientID = existing.PatientID
		// Keep personal details fresh on repeat visits.
		if _, err := s.patients.UpdateOne(ctx,
			bson.M{"patient_id": patientID},
			bson.M{"$set": bson.M{"patient_info": info}},
		); err != nil {
			return "", "", false, fmt.Errorf("refresh patient info: %w", err)
		}
	}

	visitID = s.nextVisitID(ctx, patientID)
	visit := Visit{
		VisitID:   visitID,
		Status:    "intake-in-progress",
		CreatedAt: now,
		IntakeForm: &IntakeForm{
			Personal:    info,
			SubmittedAt: now,
		},
	}
	if _, err := s.patients.UpdateOne(ctx,
		bson.M{"patient_id": patientID},
		bson.M{"$push": bson.M{"visits": visit}},
	); err != nil {
		return "", "", false, fmt.Errorf("append visit: %w", err)
	}

	return patientID, visitID, isNew, nil
}

// LookupAttributes feeds the intake engine. An unknown patient id
// yields empty attributes, matching the engine's tolerance.
func (s *Store) LookupAttributes(ctx context.Context, patientID string) (intake.PatientAttrs, error) {
	var doc struct {
		Info PatientInfo `bson:"patient_info"`
	}
	err := s.patients.FindOne(ctx,
		bson.M{"patient_id": patientID},
		options.FindOne().SetProjection(bson.M{"_id": 0, "patient_info": 1}),
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return intake.PatientAttrs{}, nil
	}
	if err != nil {
		return intake.PatientAttrs{}, fmt.Errorf("lookup patient attributes: %w", err)
	}
	return intake.PatientAttrs{
		Name:   doc.Info.Name,
		Age:    doc.Info.Age,
		Gender: doc.Info.Gender,
	}, nil
}
