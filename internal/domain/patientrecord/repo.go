package patientrecord

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrPatientNotFound is returned when a patient does not exist in the given
// tenant. Cross-tenant lookups are indistinguishable from missing patients.
var ErrPatientNotFound = errors.New("patient not found")

// Directory is the read-only view of patient data the sharing domain
// consumes. Every lookup takes an explicit tenant because the anonymous
// redemption path resolves the tenant from the share row, not from the
// request context.
type Directory interface {
	GetPatient(ctx context.Context, tenantID string, patientID uuid.UUID) (*Patient, error)
	ListAppointments(ctx context.Context, tenantID string, patientID uuid.UUID) ([]*Appointment, error)
	ListPrescriptions(ctx context.Context, tenantID string, patientID uuid.UUID) ([]*Prescription, error)
	ListDocuments(ctx context.Context, tenantID string, patientID uuid.UUID) ([]*Document, error)
}

// LoadRecord assembles the patient's full record graph from a directory.
func LoadRecord(ctx context.Context, dir Directory, tenantID string, patientID uuid.UUID) (*Record, error) {
	patient, err := dir.GetPatient(ctx, tenantID, patientID)
	if err != nil {
		return nil, err
	}
	appointments, err := dir.ListAppointments(ctx, tenantID, patientID)
	if err != nil {
		return nil, err
	}
	prescriptions, err := dir.ListPrescriptions(ctx, tenantID, patientID)
	if err != nil {
		return nil, err
	}
	documents, err := dir.ListDocuments(ctx, tenantID, patientID)
	if err != nil {
		return nil, err
	}
	return &Record{
		Patient:       patient,
		Appointments:  appointments,
		Prescriptions: prescriptions,
		Documents:     documents,
	}, nil
}
