package ingest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minasoft/ris-listener/internal/db"
)

// segment builds "TAG|f1|f2|..." from 1-based field positions.
func segment(tag string, fields map[int]string) string {
	last := 0
	for n := range fields {
		if n > last {
			last = n
		}
	}
	parts := make([]string, last+1)
	parts[0] = tag
	for n, v := range fields {
		parts[n] = v
	}
	return strings.Join(parts, "|")
}

func msh(messageType, controlID string) string {
	return "MSH|^~\\&|RIS|HOSP|PORTAL|CLINIC|20240101120000||" + messageType + "|" + controlID + "|P|2.5"
}

func pid(externalID string) string {
	return segment("PID", map[int]string{
		1:  "1",
		3:  externalID + "^^^HOSP^MR",
		5:  "Doe^Jane^Q",
		7:  "19800115",
		8:  "F",
		11: "1 Main St^Apt 2^Springfield^IL^62701^USA",
		13: "5551234567",
	})
}

func obr(accession, status string) string {
	return segment("OBR", map[int]string{
		1:  "1",
		3:  accession,
		4:  "CTCHEST^CT Chest w/o contrast",
		16: "123^House^Greg",
		25: status,
		32: "77&Wilson&James",
	})
}

func obx(id, text string) string {
	return segment("OBX", map[int]string{1: "1", 2: "TX", 3: id, 5: text, 11: "F"})
}

func message(segments ...string) []byte {
	return []byte(strings.Join(segments, "\r"))
}

type notification struct {
	PatientID uuid.UUID
	Kind      db.NotificationKind
	Vars      map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (f *fakeNotifier) RequestNotification(_ context.Context, patientID uuid.UUID, kind db.NotificationKind, vars map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, notification{PatientID: patientID, Kind: kind, Vars: vars})
	return nil
}

func (f *fakeNotifier) all() []notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification(nil), f.sent...)
}

type fakeRecorder struct {
	mu   sync.Mutex
	refs []db.UnresolvedReference
	err  error
}

func (f *fakeRecorder) RecordUnresolved(_ context.Context, ref db.UnresolvedReference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.refs = append(f.refs, ref)
	return nil
}

func (f *fakeRecorder) all() []db.UnresolvedReference {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]db.UnresolvedReference(nil), f.refs...)
	sort.Slice(out, func(i, j int) bool { return out[i].AccessionNumber < out[j].AccessionNumber })
	return out
}

var errStoreDown = errors.New("connection refused")

// failingStudies fails every call, standing in for an unreachable database.
type failingStudies struct{}

func (failingStudies) FindByAccessionNumber(context.Context, string) (*db.Study, error) {
	return nil, errStoreDown
}
func (failingStudies) Create(context.Context, *db.Study) error { return errStoreDown }
func (failingStudies) Update(context.Context, *db.Study) error { return errStoreDown }

// callCounter tallies every store call made through the counting doubles.
type callCounter struct {
	mu    sync.Mutex
	calls []string
}

func (c *callCounter) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *callCounter) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type countingPatients struct {
	db.PatientStore
	counter *callCounter
}

func (p countingPatients) FindByExternalID(ctx context.Context, externalID string) (*db.Patient, error) {
	p.counter.add("patients.FindByExternalID")
	return p.PatientStore.FindByExternalID(ctx, externalID)
}

func (p countingPatients) FindByID(ctx context.Context, id uuid.UUID) (*db.Patient, error) {
	p.counter.add("patients.FindByID")
	return p.PatientStore.FindByID(ctx, id)
}

func (p countingPatients) Create(ctx context.Context, patient *db.Patient) error {
	p.counter.add("patients.Create")
	return p.PatientStore.Create(ctx, patient)
}

func (p countingPatients) Update(ctx context.Context, patient *db.Patient) error {
	p.counter.add("patients.Update")
	return p.PatientStore.Update(ctx, patient)
}

type countingStudies struct {
	db.StudyStore
	counter *callCounter
}

func (s countingStudies) FindByAccessionNumber(ctx context.Context, accession string) (*db.Study, error) {
	s.counter.add("studies.FindByAccessionNumber")
	return s.StudyStore.FindByAccessionNumber(ctx, accession)
}

func (s countingStudies) Create(ctx context.Context, study *db.Study) error {
	s.counter.add("studies.Create")
	return s.StudyStore.Create(ctx, study)
}

func (s countingStudies) Update(ctx context.Context, study *db.Study) error {
	s.counter.add("studies.Update")
	return s.StudyStore.Update(ctx, study)
}
