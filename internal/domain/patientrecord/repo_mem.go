package patientrecord

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemoryDirectory is a map-backed Directory used in tests and in
// development mode without Postgres.
type InMemoryDirectory struct {
	mu            sync.RWMutex
	patients      map[string]map[uuid.UUID]*Patient
	appointments  map[string][]*Appointment
	prescriptions map[string][]*Prescription
	documents     map[string][]*Document
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		patients:      make(map[string]map[uuid.UUID]*Patient),
		appointments:  make(map[string][]*Appointment),
		prescriptions: make(map[string][]*Prescription),
		documents:     make(map[string][]*Document),
	}
}

// AddPatient seeds a patient into a tenant.
func (d *InMemoryDirectory) AddPatient(tenantID string, p *Patient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.patients[tenantID] == nil {
		d.patients[tenantID] = make(map[uuid.UUID]*Patient)
	}
	cp := *p
	d.patients[tenantID][p.ID] = &cp
}

func (d *InMemoryDirectory) AddAppointment(tenantID string, a *Appointment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *a
	d.appointments[tenantID] = append(d.appointments[tenantID], &cp)
}

func (d *InMemoryDirectory) AddPrescription(tenantID string, p *Prescription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *p
	d.prescriptions[tenantID] = append(d.prescriptions[tenantID], &cp)
}

func (d *InMemoryDirectory) AddDocument(tenantID string, doc *Document) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *doc
	d.documents[tenantID] = append(d.documents[tenantID], &cp)
}

func (d *InMemoryDirectory) GetPatient(_ context.Context, tenantID string, patientID uuid.UUID) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.patients[tenantID][patientID]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (d *InMemoryDirectory) ListAppointments(_ context.Context, tenantID string, patientID uuid.UUID) ([]*Appointment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*Appointment
	for _, a := range d.appointments[tenantID] {
		if a.PatientID == patientID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (d *InMemoryDirectory) ListPrescriptions(_ context.Context, tenantID string, patientID uuid.UUID) ([]*Prescription, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*Prescription
	for _, p := range d.prescriptions[tenantID] {
		if p.PatientID == patientID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (d *InMemoryDirectory) ListDocuments(_ context.Context, tenantID string, patientID uuid.UUID) ([]*Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*Document
	for _, doc := range d.documents[tenantID] {
		if doc.PatientID == patientID && !doc.Deleted {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}
