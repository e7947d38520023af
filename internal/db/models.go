package db

import (
	"time"

	"github.com/google/uuid"
)

type StudyStatus string

const (
	StudyScheduled StudyStatus = "scheduled"
	StudyCompleted StudyStatus = "completed"
)

type Patient struct {
	ID           uuid.UUID  `json:"id"`
	ExternalID   string     `json:"external_id"`
	FirstName    string     `json:"first_name"`
	MiddleName   string     `json:"middle_name,omitempty"`
	LastName     string     `json:"last_name"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
	Sex          string     `json:"sex,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	AddressLine1 string     `json:"address_line1,omitempty"`
	AddressLine2 string     `json:"address_line2,omitempty"`
	City         string     `json:"city,omitempty"`
	State        string     `json:"state,omitempty"`
	PostalCode   string     `json:"postal_code,omitempty"`
	Country      string     `json:"country,omitempty"`
	PortalUserID string     `json:"portal_user_id,omitempty"` // empty until the patient registers
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasPortalAccount reports whether the patient can log in to the portal.
func (p *Patient) HasPortalAccount() bool {
	return p.PortalUserID != ""
}

type Study struct {
	ID                uuid.UUID   `json:"id"`
	AccessionNumber   string      `json:"accession_number"`
	PatientID         uuid.UUID   `json:"patient_id"`
	Description       string      `json:"description,omitempty"`
	OrderingPhysician string      `json:"ordering_physician,omitempty"`
	Interpreter       string      `json:"interpreter,omitempty"`
	Status            StudyStatus `json:"status"`
	ReportText        string      `json:"report_text,omitempty"`
	Impression        string      `json:"impression,omitempty"`
	Findings          string      `json:"findings,omitempty"`
	Technique         string      `json:"technique,omitempty"`
	ClinicalHistory   string      `json:"clinical_history,omitempty"`
	ReportConfidence  string      `json:"report_confidence,omitempty"` // "sectioned" or "fallback"
	ReportedAt        *time.Time  `json:"reported_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// InboundRecord is the audit entry published for every framed message.
type InboundRecord struct {
	ID          string    `json:"id"`
	ReceivedAt  time.Time `json:"received_at"`
	RemoteAddr  string    `json:"remote_addr"`
	ControlID   string    `json:"control_id"`
	MessageType string    `json:"message_type"`
	AckCode     string    `json:"ack_code"`
	Reason      string    `json:"reason,omitempty"`
	RawMessage  []byte    `json:"raw_message"`
	DurationMS  int64     `json:"duration_ms"`
}

// UnresolvedReference keeps a report whose accession number matched no study
// so an operator can reconcile it.
type UnresolvedReference struct {
	AccessionNumber   string            `json:"accession_number"`
	PatientExternalID string            `json:"patient_external_id"`
	ControlID         string            `json:"control_id"`
	ResultStatus      string            `json:"result_status"`
	ReportingDoctor   string            `json:"reporting_doctor,omitempty"`
	ReportText        string            `json:"report_text"`
	Sections          map[string]string `json:"sections,omitempty"`
	Confidence        string            `json:"confidence"`
	ReceivedAt        time.Time         `json:"received_at"`
}

type NotificationKind string

const (
	NotifyResultsReadyLogin      NotificationKind = "results-ready-login"
	NotifyRegistrationInvitation NotificationKind = "registration-invitation"
)

type NotificationRequest struct {
	ID          string            `json:"id"`
	PatientID   uuid.UUID         `json:"patient_id"`
	Kind        NotificationKind  `json:"kind"`
	Variables   map[string]string `json:"variables,omitempty"`
	RequestedAt time.Time         `json:"requested_at"`
	RetryCount  int               `json:"retry_count"`
	LastError   string            `json:"last_error,omitempty"`
}

type StreamInfo struct {
	Name          string `json:"name"`
	Messages      uint64 `json:"messages"`
	Bytes         uint64 `json:"bytes"`
	FirstSequence uint64 `json:"first_sequence"`
	LastSequence  uint64 `json:"last_sequence"`
}

type ConsumerInfo struct {
	Stream          string `json:"stream"`
	Name            string `json:"name"`
	Pending         uint64 `json:"pending"`
	Delivered       uint64 `json:"delivered"`
	AckPending      uint64 `json:"ack_pending"`
	RedeliveryCount uint64 `json:"redelivery_count"`
}
