// Package entity defines the typed document schema of the portal's
// collections. The store adapter hands the engine raw documents; Decode
// turns them into one of these variants at the boundary so everything
// behind it stays fully typed.
package entity

import (
	"fmt"
	"time"

	"github.com/curalink/syncengine/store"
)

// Kind identifies an entity variant.
type Kind string

const (
	KindAppointment  Kind = "appointment"
	KindPrescription Kind = "prescription"
	KindStockItem    Kind = "stock_item"
	KindCareLog      Kind = "care_log"
	KindGeneric      Kind = "generic"
)

// Collection names as used by the remote store.
const (
	CollectionAppointments  = "appointments"
	CollectionPrescriptions = "prescriptions"
	CollectionStock         = "stock"
	CollectionLogs          = "logs"
)

// Entity is the tagged union over collection document types.
type Entity interface {
	EntityKind() Kind
	DocumentID() string
	DocVersion() int64
}

// Appointment is a scheduled visit between a patient and a doctor.
type Appointment struct {
	ID          string
	PatientID   string
	DoctorID    string
	Status      string
	Reason      string
	ScheduledAt time.Time
	Version     int64
}

func (a Appointment) EntityKind() Kind    { return KindAppointment }
func (a Appointment) DocumentID() string  { return a.ID }
func (a Appointment) DocVersion() int64   { return a.Version }

// Prescription is an issued medication order.
type Prescription struct {
	ID         string
	PatientID  string
	DoctorID   string
	Medication string
	Dosage     string
	Status     string
	IssuedAt   time.Time
	Version    int64
}

func (p Prescription) EntityKind() Kind   { return KindPrescription }
func (p Prescription) DocumentID() string { return p.ID }
func (p Prescription) DocVersion() int64  { return p.Version }

// StockItem is one pharmacy inventory line.
type StockItem struct {
	ID         string
	PharmacyID string
	Name       string
	Quantity   int64
	ExpiresAt  time.Time
	Version    int64
}

func (s StockItem) EntityKind() Kind   { return KindStockItem }
func (s StockItem) DocumentID() string { return s.ID }
func (s StockItem) DocVersion() int64  { return s.Version }

// CareLog is a community-health-worker visit note.
type CareLog struct {
	ID         string
	WorkerID   string
	PatientID  string
	Note       string
	RecordedAt time.Time
	Version    int64
}

func (c CareLog) EntityKind() Kind   { return KindCareLog }
func (c CareLog) DocumentID() string { return c.ID }
func (c CareLog) DocVersion() int64  { return c.Version }

// Generic carries documents from collections without a dedicated schema.
type Generic struct {
	ID      string
	Fields  store.Document
	Version int64
}

func (g Generic) EntityKind() Kind   { return KindGeneric }
func (g Generic) DocumentID() string { return g.ID }
func (g Generic) DocVersion() int64  { return g.Version }

// Decode converts a raw store document into its typed entity. Unknown
// collections decode to Generic rather than failing, so new collections can
// flow through the engine before the schema catches up.
func Decode(collection, id string, doc store.Document) (Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("decode %s: empty document id", collection)
	}

	switch collection {
	case CollectionAppointments:
		return Appointment{
			ID:          id,
			PatientID:   getString(doc, "patientId"),
			DoctorID:    getString(doc, "doctorId"),
			Status:      getString(doc, "status"),
			Reason:      getString(doc, "reason"),
			ScheduledAt: getTime(doc, "scheduledAt"),
			Version:     doc.Version(),
		}, nil
	case CollectionPrescriptions:
		return Prescription{
			ID:         id,
			PatientID:  getString(doc, "patientId"),
			DoctorID:   getString(doc, "doctorId"),
			Medication: getString(doc, "medication"),
			Dosage:     getString(doc, "dosage"),
			Status:     getString(doc, "status"),
			IssuedAt:   getTime(doc, "issuedAt"),
			Version:    doc.Version(),
		}, nil
	case CollectionStock:
		return StockItem{
			ID:         id,
			PharmacyID: getString(doc, "pharmacyId"),
			Name:       getString(doc, "name"),
			Quantity:   getInt(doc, "quantity"),
			ExpiresAt:  getTime(doc, "expiresAt"),
			Version:    doc.Version(),
		}, nil
	case CollectionLogs:
		return CareLog{
			ID:         id,
			WorkerID:   getString(doc, "workerId"),
			PatientID:  getString(doc, "patientId"),
			Note:       getString(doc, "note"),
			RecordedAt: getTime(doc, "recordedAt"),
			Version:    doc.Version(),
		}, nil
	default:
		return Generic{ID: id, Fields: doc.Clone(), Version: doc.Version()}, nil
	}
}

func getString(doc store.Document, field string) string {
	if s, ok := doc[field].(string); ok {
		return s
	}
	return ""
}

func getInt(doc store.Document, field string) int64 {
	switch v := doc[field].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func getTime(doc store.Document, field string) time.Time {
	switch v := doc[field].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
