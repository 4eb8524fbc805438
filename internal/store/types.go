package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

type PatientInfo struct {
	Name             string `bson:"name" json:"name"`
	Age              int    `bson:"age" json:"age"`
	Gender           string `bson:"gender" json:"gender"`
	Mobile           string `bson:"mobile" json:"mobile"`
	Email            string `bson:"email,omitempty" json:"email,omitempty"`
	EmergencyContact string `bson:"emergency_contact,omitempty" json:"emergency_contact,omitempty"`
}

type PatientRecord struct {
	PatientID string      `bson:"patient_id" json:"patient_id"`
	Info      PatientInfo `bson:"patient_info" json:"patient_info"`
	Visits    []Visit     `bson:"visits" json:"visits"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
}

type Visit struct {
	VisitID      string        `bson:"visit_id" json:"visit_id"`
	Status       string        `bson:"status,omitempty" json:"status,omitempty"`
	CreatedAt    time.Time     `bson:"created_at" json:"created_at"`
	IntakeForm   *IntakeForm   `bson:"intake_form,omitempty" json:"intake_form,omitempty"`
	Transcript   string        `bson:"transcript,omitempty" json:"transcript,omitempty"`
	SOAPSummary  bson.M        `bson:"soap_summary,omitempty" json:"soap_summary,omitempty"`
	Consultation *Consultation `bson:"consultation,omitempty" json:"consultation,omitempty"`
}

type IntakeForm struct {
	Personal    PatientInfo `bson:"personal" json:"personal"`
	SubmittedAt time.Time   `bson:"submitted_at" json:"submitted_at"`
}

type Consultation struct {
	Status      string     `bson:"status" json:"status"`
	StartedAt   *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	Summary     string     `bson:"summary,omitempty" json:"summary,omitempty"`
	Notes       []Note     `bson:"notes" json:"notes"`
}

type Note struct {
	Text      string    `bson:"text" json:"text"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
