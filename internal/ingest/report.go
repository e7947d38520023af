package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/minasoft/ris-listener/internal/db"
	"github.com/minasoft/ris-listener/internal/hl7"
)

func (p *Processor) handleReport(ctx context.Context, log *slog.Logger, msg *hl7.Message) (string, error) {
	pid, ok := msg.Segment("PID")
	if !ok {
		return "", missingSegment("PID")
	}
	obr, ok := msg.Segment("OBR")
	if !ok {
		return "", missingSegment("OBR")
	}

	patient := patientFromPID(pid)
	order := orderFromOBR(obr)
	if order.AccessionNumber == "" {
		return "", missingField("OBR-3 accession number")
	}
	log = log.With("accessionNumber", order.AccessionNumber, "patientID", patient.ID, "resultStatus", order.ResultStatus)

	report := ExtractSections(msg.SegmentsOf("OBX"))
	if report.Confidence == Fallback {
		log.Warn("Rapor bölümleri tanımlanamadı, metinden tahmin edildi")
	}

	study, err := p.studies.FindByAccessionNumber(ctx, order.AccessionNumber)
	if errors.Is(err, db.ErrNotFound) {
		return p.recordUnresolved(ctx, log, msg.ControlID(), patient, order, report)
	}
	if err != nil {
		return "", transient("study lookup failed", err)
	}

	if !order.IsFinal() {
		log.Info("Kesinleşmemiş rapor alındı, çalışma güncellenmedi")
		return "", nil
	}

	alreadyReported := study.Status == db.StudyCompleted && study.ReportText == report.Text
	now := p.now().UTC()
	study.Status = db.StudyCompleted
	study.ReportText = report.Text
	study.Impression = report.Get(SectionImpression)
	study.Findings = report.Get(SectionFindings)
	study.Technique = report.Get(SectionTechnique)
	study.ClinicalHistory = report.Get(SectionClinicalHistory)
	study.ReportConfidence = report.Confidence.String()
	if physician := order.ReportingPhysician(); physician != "" {
		study.Interpreter = physician
	}
	study.ReportedAt = &now
	if err := p.studies.Update(ctx, study); err != nil {
		return "", transient("study update failed", err)
	}
	log.Info("Çalışma raporu kaydedildi", "studyID", study.ID, "confidence", report.Confidence.String())

	stored, err := p.patients.FindByID(ctx, study.PatientID)
	if errors.Is(err, db.ErrNotFound) {
		log.Warn("Çalışmaya bağlı hasta bulunamadı, bildirim gönderilmedi", "studyID", study.ID)
		return "", nil
	}
	if err != nil {
		return "", transient("patient lookup failed", err)
	}

	if alreadyReported {
		// Retransmission of a report we already applied and announced.
		log.Info("Rapor daha önce işlenmiş, bildirim tekrarlanmadı")
		return "", nil
	}

	kind := db.NotifyRegistrationInvitation
	if stored.HasPortalAccount() {
		kind = db.NotifyResultsReadyLogin
	}
	vars := map[string]string{
		"patient_name":      stored.FirstName,
		"study_description": study.Description,
		"accession_number":  study.AccessionNumber,
	}
	if err := p.notifier.RequestNotification(ctx, stored.ID, kind, vars); err != nil {
		log.Error("Bildirim isteği kuyruğa alınamadı", "kind", kind, "error", err)
	} else {
		p.metrics.NotificationRequested(string(kind))
		log.Info("Bildirim isteği kuyruğa alındı", "kind", kind)
	}
	return "", nil
}

func (p *Processor) recordUnresolved(ctx context.Context, log *slog.Logger, controlID string, patient ExternalPatient, order ExternalOrder, report ReportSections) (string, error) {
	ref := db.UnresolvedReference{
		AccessionNumber:   order.AccessionNumber,
		PatientExternalID: patient.ID,
		ControlID:         controlID,
		ResultStatus:      order.ResultStatus,
		ReportingDoctor:   order.ReportingPhysician(),
		ReportText:        report.Text,
		Sections:          report.Sections,
		Confidence:        report.Confidence.String(),
		ReceivedAt:        p.now().UTC(),
	}
	if err := p.unresolved.RecordUnresolved(ctx, ref); err != nil {
		// Acknowledging without a record would lose the report.
		return "", transient("unresolved reference could not be recorded", err)
	}
	p.metrics.UnresolvedReference()
	log.Warn("Erişim numarasına ait çalışma bulunamadı, operatör incelemesine alındı")
	return fmt.Sprintf("UnresolvedReference: accession %s not found, flagged for review", order.AccessionNumber), nil
}
