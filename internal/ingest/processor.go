package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/minasoft/ris-listener/internal/db"
	"github.com/minasoft/ris-listener/internal/hl7"
	"github.com/minasoft/ris-listener/internal/metrics"
)

// Notifier queues a patient notification. Delivery happens elsewhere; an
// error only means the request could not be queued.
type Notifier interface {
	RequestNotification(ctx context.Context, patientID uuid.UUID, kind db.NotificationKind, vars map[string]string) error
}

// ReferenceRecorder keeps reports that could not be matched to a study.
type ReferenceRecorder interface {
	RecordUnresolved(ctx context.Context, ref db.UnresolvedReference) error
}

type Dependencies struct {
	Patients   db.PatientStore
	Studies    db.StudyStore
	Notifier   Notifier
	Unresolved ReferenceRecorder
	Metrics    *metrics.Metrics

	// StoreTimeout bounds the collaborator calls made for one message.
	StoreTimeout time.Duration
}

// Processor routes parsed messages to their handler and turns the outcome
// into an acknowledgement. It implements hl7.Processor.
type Processor struct {
	patients   db.PatientStore
	studies    db.StudyStore
	notifier   Notifier
	unresolved ReferenceRecorder
	metrics    *metrics.Metrics
	timeout    time.Duration
	now        func() time.Time
}

func NewProcessor(deps Dependencies) *Processor {
	timeout := deps.StoreTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Processor{
		patients:   deps.Patients,
		studies:    deps.Studies,
		notifier:   deps.Notifier,
		unresolved: deps.Unresolved,
		metrics:    deps.Metrics,
		timeout:    timeout,
		now:        time.Now,
	}
}

func (p *Processor) Process(ctx context.Context, msg *hl7.Message) hl7.AckResult {
	controlID := msg.ControlID()
	kind := Classify(msg)
	p.metrics.MessageRouted(kind.String())

	log := slog.With("controlID", controlID, "messageType", msg.Type(), "route", kind.String())

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		note string
		err  error
	)
	switch kind {
	case ReportCompletion:
		note, err = p.handleReport(ctx, log, msg)
	case NewOrder:
		note, err = p.handleOrder(ctx, log, msg)
	case PatientUpdate:
		note, err = p.handlePatientUpdate(ctx, log, msg)
	case Unsupported:
		log.Info("Desteklenmeyen mesaj tipi, işlem yapılmadan onaylandı")
		return hl7.AcceptedWithNote(controlID, "UnsupportedMessageType: "+msg.Type()+" ignored")
	default:
		panic(fmt.Sprintf("ingest: unhandled message type %d", kind))
	}

	if err != nil {
		var herr *HandlingError
		if errors.As(err, &herr) {
			log.Warn("Mesaj işlenemedi", "kind", herr.Kind.String(), "error", err)
			return hl7.Rejected(controlID, herr.Reason())
		}
		log.Error("Mesaj işlenemedi", "error", err)
		return hl7.Rejected(controlID, "internal error while processing message")
	}
	return hl7.AcceptedWithNote(controlID, note)
}

// ensurePatient returns the stored patient for ext, creating it when no
// record matches the external ID. A concurrent create is treated as found.
func (p *Processor) ensurePatient(ctx context.Context, ext ExternalPatient) (*db.Patient, bool, error) {
	existing, err := p.patients.FindByExternalID(ctx, ext.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, false, transient("patient lookup failed", err)
	}

	patient := ext.toPatient()
	switch err := p.patients.Create(ctx, patient); {
	case err == nil:
		return patient, true, nil
	case errors.Is(err, db.ErrAlreadyExists):
		existing, err := p.patients.FindByExternalID(ctx, ext.ID)
		if err != nil {
			return nil, false, transient("patient lookup failed", err)
		}
		return existing, false, nil
	default:
		return nil, false, transient("patient create failed", err)
	}
}
