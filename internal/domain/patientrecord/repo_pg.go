package patientrecord

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medishare/medishare/internal/platform/db"
)

type directoryPG struct {
	pool *pgxpool.Pool
}

// NewDirectory returns a Directory backed by the tenant schemas in Postgres.
func NewDirectory(pool *pgxpool.Pool) Directory {
	return &directoryPG{pool: pool}
}

func (d *directoryPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return d.pool
}

// schema validates the tenant id before it is interpolated into a query.
// Tenant ids come from share rows as well as request context, so they are
// re-checked here even when middleware already did.
func schema(tenantID string) (string, error) {
	if !db.ValidTenantID(tenantID) {
		return "", fmt.Errorf("invalid tenant id %q", tenantID)
	}
	return db.SchemaFor(tenantID), nil
}

func (d *directoryPG) GetPatient(ctx context.Context, tenantID string, patientID uuid.UUID) (*Patient, error) {
	sch, err := schema(tenantID)
	if err != nil {
		return nil, err
	}

	var p Patient
	err = d.conn(ctx).QueryRow(ctx, `
		SELECT id, first_name, last_name, birth_date, gender, blood_type,
		       allergies, medical_history
		FROM `+sch+`.patient WHERE id = $1`, patientID,
	).Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.BirthDate, &p.Gender, &p.BloodType,
		&p.Allergies, &p.MedicalHistory,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *directoryPG) ListAppointments(ctx context.Context, tenantID string, patientID uuid.UUID) ([]*Appointment, error) {
	sch, err := schema(tenantID)
	if err != nil {
		return nil, err
	}

	rows, err := d.conn(ctx).Query(ctx, `
		SELECT id, patient_id, appointment_date, reason, status
		FROM `+sch+`.appointment
		WHERE patient_id = $1
		ORDER BY appointment_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []*Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.Date, &a.Reason, &a.Status); err != nil {
			return nil, err
		}
		appts = append(appts, &a)
	}
	return appts, rows.Err()
}

func (d *directoryPG) ListPrescriptions(ctx context.Context, tenantID string, patientID uuid.UUID) ([]*Prescription, error) {
	sch, err := schema(tenantID)
	if err != nil {
		return nil, err
	}

	rows, err := d.conn(ctx).Query(ctx, `
		SELECT id, patient_id, medication, dosage, start_date
		FROM `+sch+`.prescription
		WHERE patient_id = $1
		ORDER BY start_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scripts []*Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.PatientID, &p.Medication, &p.Dosage, &p.StartDate); err != nil {
			return nil, err
		}
		scripts = append(scripts, &p)
	}
	return scripts, rows.Err()
}

func (d *directoryPG) ListDocuments(ctx context.Context, tenantID string, patientID uuid.UUID) ([]*Document, error) {
	sch, err := schema(tenantID)
	if err != nil {
		return nil, err
	}

	rows, err := d.conn(ctx).Query(ctx, `
		SELECT id, patient_id, file_name, file_type, document_date, deleted
		FROM `+sch+`.document
		WHERE patient_id = $1 AND deleted = false
		ORDER BY document_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.PatientID, &doc.FileName, &doc.FileType, &doc.DocumentDate, &doc.Deleted); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// queryable abstracts pgxpool.Pool, pgxpool.Conn and pgx.Tx for tenant-scoped
// queries.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
