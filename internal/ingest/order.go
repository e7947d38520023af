package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/minasoft/ris-listener/internal/db"
	"github.com/minasoft/ris-listener/internal/hl7"
)

func (p *Processor) handleOrder(ctx context.Context, log *slog.Logger, msg *hl7.Message) (string, error) {
	pid, ok := msg.Segment("PID")
	if !ok {
		return "", missingSegment("PID")
	}
	obr, ok := msg.Segment("OBR")
	if !ok {
		return "", missingSegment("OBR")
	}

	ext := patientFromPID(pid)
	if ext.ID == "" {
		return "", missingField("PID-3 patient identifier")
	}
	order := orderFromOBR(obr)
	if order.AccessionNumber == "" {
		return "", missingField("OBR-3 accession number")
	}
	log = log.With("accessionNumber", order.AccessionNumber, "patientID", ext.ID)

	patient, created, err := p.ensurePatient(ctx, ext)
	if err != nil {
		return "", err
	}
	if created {
		log.Info("Yeni hasta oluşturuldu", "id", patient.ID)
	}

	if _, err := p.studies.FindByAccessionNumber(ctx, order.AccessionNumber); err == nil {
		log.Info("Aynı erişim numarasıyla çalışma zaten var, sipariş yok sayıldı")
		return "", nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return "", transient("study lookup failed", err)
	}

	study := &db.Study{
		AccessionNumber:   order.AccessionNumber,
		PatientID:         patient.ID,
		Description:       order.Description,
		OrderingPhysician: order.OrderingPhysician,
		Interpreter:       order.Interpreter,
		Status:            db.StudyScheduled,
	}
	switch err := p.studies.Create(ctx, study); {
	case err == nil:
		log.Info("Yeni çalışma oluşturuldu", "studyID", study.ID)
	case errors.Is(err, db.ErrAlreadyExists):
		// Lost a race with another connection carrying the same order.
		log.Info("Çalışma eş zamanlı olarak oluşturulmuş, sipariş yok sayıldı")
	default:
		return "", transient("study create failed", err)
	}
	return "", nil
}
