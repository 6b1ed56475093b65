package entity

import (
	"testing"
	"time"

	"github.com/curalink/syncengine/store"
)

func TestDecodeAppointment(t *testing.T) {
	doc := store.Document{
		"patientId":   "p1",
		"doctorId":    "d9",
		"status":      "confirmed",
		"reason":      "follow-up",
		"scheduledAt": "2026-04-01T09:30:00Z",
		"version":     int64(3),
	}

	e, err := Decode(CollectionAppointments, "A1", doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	appt, ok := e.(Appointment)
	if !ok {
		t.Fatalf("decoded %T, want Appointment", e)
	}
	if appt.ID != "A1" || appt.PatientID != "p1" || appt.DoctorID != "d9" {
		t.Errorf("unexpected identity fields: %+v", appt)
	}
	if appt.Status != "confirmed" {
		t.Errorf("Status = %s, want confirmed", appt.Status)
	}
	want := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	if !appt.ScheduledAt.Equal(want) {
		t.Errorf("ScheduledAt = %v, want %v", appt.ScheduledAt, want)
	}
	if appt.DocVersion() != 3 {
		t.Errorf("DocVersion = %d, want 3", appt.DocVersion())
	}
}

func TestDecodeKinds(t *testing.T) {
	tests := []struct {
		collection string
		want       Kind
	}{
		{CollectionAppointments, KindAppointment},
		{CollectionPrescriptions, KindPrescription},
		{CollectionStock, KindStockItem},
		{CollectionLogs, KindCareLog},
		{"audit_trail", KindGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.collection, func(t *testing.T) {
			e, err := Decode(tt.collection, "x1", store.Document{"version": 1})
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if e.EntityKind() != tt.want {
				t.Errorf("EntityKind = %s, want %s", e.EntityKind(), tt.want)
			}
			if e.DocumentID() != "x1" {
				t.Errorf("DocumentID = %s, want x1", e.DocumentID())
			}
		})
	}
}

func TestDecodeEmptyID(t *testing.T) {
	if _, err := Decode(CollectionStock, "", store.Document{}); err == nil {
		t.Error("Decode should reject an empty document id")
	}
}

func TestDecodeGenericClonesFields(t *testing.T) {
	doc := store.Document{"foo": "bar"}
	e, err := Decode("misc", "m1", doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	g := e.(Generic)
	doc["foo"] = "mutated"
	if g.Fields["foo"] != "bar" {
		t.Error("generic entity must not alias the source document")
	}
}

func TestDecodeToleratesMissingFields(t *testing.T) {
	e, err := Decode(CollectionStock, "s1", store.Document{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	item := e.(StockItem)
	if item.Quantity != 0 || item.Name != "" || !item.ExpiresAt.IsZero() {
		t.Errorf("zero values expected for missing fields: %+v", item)
	}
	if item.DocVersion() != 0 {
		t.Errorf("DocVersion = %d, want 0 for missing version", item.DocVersion())
	}
}
