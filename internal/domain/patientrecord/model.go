package patientrecord

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table in a tenant schema. Only the fields the
// sharing views expose are read here; demographic CRUD lives upstream.
type Patient struct {
	ID             uuid.UUID `db:"id" json:"id"`
	FirstName      string    `db:"first_name" json:"first_name"`
	LastName       string    `db:"last_name" json:"last_name"`
	BirthDate      time.Time `db:"birth_date" json:"birth_date"`
	Gender         string    `db:"gender" json:"gender"`
	BloodType      *string   `db:"blood_type" json:"blood_type,omitempty"`
	Allergies      []string  `db:"allergies" json:"allergies,omitempty"`
	MedicalHistory []string  `db:"medical_history" json:"medical_history,omitempty"`
}

// FullName returns the patient's display name.
func (p *Patient) FullName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Appointment maps to the appointment table in a tenant schema.
type Appointment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Date      time.Time `db:"appointment_date" json:"date"`
	Reason    string    `db:"reason" json:"reason"`
	Status    string    `db:"status" json:"status"`
}

// Prescription maps to the prescription table in a tenant schema.
type Prescription struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	Medication string    `db:"medication" json:"medication"`
	Dosage     string    `db:"dosage" json:"dosage"`
	StartDate  time.Time `db:"start_date" json:"start_date"`
}

// Document maps to the document table in a tenant schema. Deleted documents
// are retained for audit but must never surface in shared views.
type Document struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	FileName     string    `db:"file_name" json:"file_name"`
	FileType     string    `db:"file_type" json:"file_type"`
	DocumentDate time.Time `db:"document_date" json:"document_date"`
	Deleted      bool      `db:"deleted" json:"-"`
}

// Record is one patient's full readable graph, as consumed by the scope
// projector.
type Record struct {
	Patient       *Patient        `json:"patient"`
	Appointments  []*Appointment  `json:"appointments"`
	Prescriptions []*Prescription `json:"prescriptions"`
	Documents     []*Document     `json:"documents"`
}
