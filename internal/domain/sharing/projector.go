package sharing

import (
	"time"

	"github.com/google/uuid"

	"github.com/medishare/medishare/internal/domain/patientrecord"
)

// PatientIdentity is the reduced identity block every shared view carries.
// It exposes no internal identifiers.
type PatientIdentity struct {
	Name      string   `json:"name"`
	BirthDate string   `json:"birth_date"`
	Gender    string   `json:"gender"`
	BloodType *string  `json:"blood_type,omitempty"`
	Allergies []string `json:"allergies,omitempty"`
}

type AppointmentView struct {
	ID     uuid.UUID `json:"id"`
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
	Status string    `json:"status"`
}

type PrescriptionView struct {
	ID         uuid.UUID `json:"id"`
	Medication string    `json:"medication"`
	Dosage     string    `json:"dosage"`
	StartDate  time.Time `json:"start_date"`
}

type DocumentView struct {
	ID       uuid.UUID `json:"id"`
	FileName string    `json:"file_name"`
	FileType string    `json:"file_type"`
	Date     time.Time `json:"date"`
}

// SharedView is what an anonymous token holder sees: the identity block plus
// exactly the sub-resources the scope declares. Absent sections stay null.
type SharedView struct {
	Patient        PatientIdentity    `json:"patient"`
	Scope          Scope              `json:"scope"`
	Appointments   []AppointmentView  `json:"appointments"`
	Prescriptions  []PrescriptionView `json:"prescriptions"`
	Documents      []DocumentView     `json:"documents"`
	MedicalHistory []string           `json:"medical_history,omitempty"`
}

// Project builds the permitted view of a patient record for a share. This is
// the privacy boundary: nothing outside the declared scope and no
// soft-deleted document may ever appear in the result, and projection never
// mutates share state.
func Project(share *Share, rec *patientrecord.Record) *SharedView {
	view := &SharedView{
		Patient: PatientIdentity{
			Name:      rec.Patient.FullName(),
			BirthDate: rec.Patient.BirthDate.Format("2006-01-02"),
			Gender:    rec.Patient.Gender,
			BloodType: rec.Patient.BloodType,
			Allergies: rec.Patient.Allergies,
		},
		Scope: share.Scope,
	}

	if share.IncludesKind(KindAppointments) {
		view.Appointments = make([]AppointmentView, 0, len(rec.Appointments))
		for _, a := range rec.Appointments {
			view.Appointments = append(view.Appointments, AppointmentView{
				ID:     a.ID,
				Date:   a.Date,
				Reason: a.Reason,
				Status: a.Status,
			})
		}
	}

	if share.IncludesKind(KindPrescriptions) {
		view.Prescriptions = make([]PrescriptionView, 0, len(rec.Prescriptions))
		for _, p := range rec.Prescriptions {
			view.Prescriptions = append(view.Prescriptions, PrescriptionView{
				ID:         p.ID,
				Medication: p.Medication,
				Dosage:     p.Dosage,
				StartDate:  p.StartDate,
			})
		}
	}

	if share.IncludesKind(KindDocuments) {
		view.Documents = make([]DocumentView, 0, len(rec.Documents))
		for _, d := range rec.Documents {
			if d.Deleted {
				continue
			}
			view.Documents = append(view.Documents, DocumentView{
				ID:       d.ID,
				FileName: d.FileName,
				FileType: d.FileType,
				Date:     d.DocumentDate,
			})
		}
	}

	if share.Scope == ScopeFullRecord {
		view.MedicalHistory = rec.Patient.MedicalHistory
	}

	return view
}
