package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/minasoft/ris-listener/internal/db"
	"github.com/minasoft/ris-listener/internal/hl7"
)

func (p *Processor) handlePatientUpdate(ctx context.Context, log *slog.Logger, msg *hl7.Message) (string, error) {
	pid, ok := msg.Segment("PID")
	if !ok {
		return "", missingSegment("PID")
	}
	ext := patientFromPID(pid)
	if ext.ID == "" {
		return "", missingField("PID-3 patient identifier")
	}
	log = log.With("patientID", ext.ID)

	patient, err := p.patients.FindByExternalID(ctx, ext.ID)
	if errors.Is(err, db.ErrNotFound) {
		log.Warn("Güncellenecek hasta bulunamadı")
		return "unknown patient " + ext.ID + ", update ignored", nil
	}
	if err != nil {
		return "", transient("patient lookup failed", err)
	}

	if !ext.applyTo(patient) {
		log.Debug("Hasta bilgilerinde değişiklik yok")
		return "", nil
	}
	if err := p.patients.Update(ctx, patient); err != nil {
		return "", transient("patient update failed", err)
	}
	log.Info("Hasta bilgileri güncellendi", "id", patient.ID)
	return "", nil
}
