package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const clinicPrefix = "CLINIC01"

// nextPatientID hands out CLINIC01-YYYYMMDD-0001 style ids from a
// per-day counter document. If the counter update fails the id falls
// back to a UUID suffix rather than blocking registration.
func (s *Store) nextPatientID(ctx context.Context) string {
	date := time.Now().UTC().Format("20060102")

	var counter struct {
		Seq int `bson:"seq"`
	}
	err := s.db.Collection("patient_counter").FindOneAndUpdate(ctx,
		bson.M{"_id": date},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		suffix := strings.ToUpper(uuid.NewString()[:8])
		return fmt.Sprintf("%s-%s-%s", clinicPrefix, date, suffix)
	}

	return fmt.Sprintf("%s-%s-%04d", clinicPrefix, date, counter.Seq)
}

// nextVisitID hands out VYYYYMMDD-01 style ids from a per-(patient,
// day) counter, with the same UUID fallback.
func (s *Store) nextVisitID(ctx context.Context, patientID string) string {
	date := time.Now().UTC().Format("20060102")

	var counter struct {
		Seq int `bson:"seq"`
	}
	err := s.db.Collection("visit_counter").FindOneAndUpdate(ctx,
		bson.M{"_id": patientID + ":" + date},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		suffix := strings.ToUpper(uuid.NewString()[:4])
		return fmt.Sprintf("V%s-%s", date, suffix)
	}

	return fmt.Sprintf("V%s-%02d", date, counter.Seq)
}
