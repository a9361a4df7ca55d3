package sharing

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medishare/medishare/internal/domain/patientrecord"
)

func strPtr(s string) *string { return &s }

func testRecord() *patientrecord.Record {
	patientID := uuid.New()
	return &patientrecord.Record{
		Patient: &patientrecord.Patient{
			ID:             patientID,
			FirstName:      "Jane",
			LastName:       "Doe",
			BirthDate:      time.Date(1984, 3, 12, 0, 0, 0, 0, time.UTC),
			Gender:         "female",
			BloodType:      strPtr("O+"),
			Allergies:      []string{"penicillin"},
			MedicalHistory: []string{"asthma"},
		},
		Appointments: []*patientrecord.Appointment{
			{ID: uuid.New(), PatientID: patientID, Date: time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC), Reason: "checkup", Status: "completed"},
			{ID: uuid.New(), PatientID: patientID, Date: time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC), Reason: "followup", Status: "scheduled"},
		},
		Prescriptions: []*patientrecord.Prescription{
			{ID: uuid.New(), PatientID: patientID, Medication: "salbutamol", Dosage: "100mcg", StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		Documents: []*patientrecord.Document{
			{ID: uuid.New(), PatientID: patientID, FileName: "labs.pdf", FileType: "pdf", DocumentDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)},
			{ID: uuid.New(), PatientID: patientID, FileName: "old-scan.pdf", FileType: "pdf", Deleted: true},
		},
	}
}

func TestProject_IdentityBlockAlwaysPresent(t *testing.T) {
	for _, scope := range []Scope{ScopeFullRecord, ScopeAppointmentsOnly, ScopePrescriptionsOnly, ScopeDocumentsOnly} {
		view := Project(&Share{Scope: scope}, testRecord())
		if view.Patient.Name != "Jane Doe" {
			t.Errorf("%s: expected identity name Jane Doe, got %s", scope, view.Patient.Name)
		}
		if view.Patient.BirthDate != "1984-03-12" {
			t.Errorf("%s: expected birth date 1984-03-12, got %s", scope, view.Patient.BirthDate)
		}
		if view.Patient.BloodType == nil || *view.Patient.BloodType != "O+" {
			t.Errorf("%s: expected blood type O+", scope)
		}
		if len(view.Patient.Allergies) != 1 {
			t.Errorf("%s: expected allergies in identity block", scope)
		}
	}
}

func TestProject_FullRecord(t *testing.T) {
	view := Project(&Share{Scope: ScopeFullRecord}, testRecord())

	if len(view.Appointments) != 2 {
		t.Errorf("expected 2 appointments, got %d", len(view.Appointments))
	}
	if len(view.Prescriptions) != 1 {
		t.Errorf("expected 1 prescription, got %d", len(view.Prescriptions))
	}
	if len(view.Documents) != 1 {
		t.Errorf("expected 1 non-deleted document, got %d", len(view.Documents))
	}
	if len(view.MedicalHistory) != 1 {
		t.Errorf("expected medical history, got %v", view.MedicalHistory)
	}
	for _, d := range view.Documents {
		if d.FileName == "old-scan.pdf" {
			t.Error("soft-deleted document leaked into full record view")
		}
	}
}

func TestProject_AppointmentsOnly(t *testing.T) {
	view := Project(&Share{Scope: ScopeAppointmentsOnly}, testRecord())

	if len(view.Appointments) != 2 {
		t.Errorf("expected 2 appointments, got %d", len(view.Appointments))
	}
	if view.Prescriptions != nil {
		t.Error("prescriptions must be null outside scope")
	}
	if view.Documents != nil {
		t.Error("documents must be null outside scope")
	}
	if view.MedicalHistory != nil {
		t.Error("medical history is full-record only")
	}
	if view.Appointments[0].Reason != "checkup" {
		t.Errorf("expected appointment fields carried over, got %+v", view.Appointments[0])
	}
}

func TestProject_PrescriptionsOnly(t *testing.T) {
	view := Project(&Share{Scope: ScopePrescriptionsOnly}, testRecord())

	if len(view.Prescriptions) != 1 {
		t.Errorf("expected 1 prescription, got %d", len(view.Prescriptions))
	}
	if view.Prescriptions[0].Medication != "salbutamol" {
		t.Errorf("unexpected prescription: %+v", view.Prescriptions[0])
	}
	if view.Appointments != nil || view.Documents != nil {
		t.Error("other sections must be null")
	}
}

func TestProject_DocumentsOnly(t *testing.T) {
	view := Project(&Share{Scope: ScopeDocumentsOnly}, testRecord())

	if len(view.Documents) != 1 {
		t.Fatalf("expected 1 document, got %d", len(view.Documents))
	}
	if view.Documents[0].FileName != "labs.pdf" {
		t.Errorf("expected labs.pdf, got %s", view.Documents[0].FileName)
	}
	if view.Appointments != nil || view.Prescriptions != nil {
		t.Error("other sections must be null")
	}
}

func TestProject_Custom(t *testing.T) {
	tests := []struct {
		name          string
		kinds         []ResourceKind
		wantAppts     bool
		wantScripts   bool
		wantDocuments bool
	}{
		{"appointments and documents", []ResourceKind{KindAppointments, KindDocuments}, true, false, true},
		{"prescriptions only", []ResourceKind{KindPrescriptions}, false, true, false},
		{"all three", []ResourceKind{KindAppointments, KindPrescriptions, KindDocuments}, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := Project(&Share{Scope: ScopeCustom, CustomResources: tt.kinds}, testRecord())

			if got := view.Appointments != nil; got != tt.wantAppts {
				t.Errorf("appointments present = %v, want %v", got, tt.wantAppts)
			}
			if got := view.Prescriptions != nil; got != tt.wantScripts {
				t.Errorf("prescriptions present = %v, want %v", got, tt.wantScripts)
			}
			if got := view.Documents != nil; got != tt.wantDocuments {
				t.Errorf("documents present = %v, want %v", got, tt.wantDocuments)
			}
			if view.MedicalHistory != nil {
				t.Error("medical history is full-record only")
			}
		})
	}
}

func TestProject_CustomExcludesDeletedDocuments(t *testing.T) {
	view := Project(&Share{Scope: ScopeCustom, CustomResources: []ResourceKind{KindDocuments}}, testRecord())

	for _, d := range view.Documents {
		if d.FileName == "old-scan.pdf" {
			t.Error("soft-deleted document leaked into custom view")
		}
	}
}
