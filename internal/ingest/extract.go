package ingest

import (
	"strings"
	"time"

	"github.com/minasoft/ris-listener/internal/db"
	"github.com/minasoft/ris-listener/internal/hl7"
)

// ExternalPatient is the identity carried in PID. It is a key and payload,
// not the stored patient.
type ExternalPatient struct {
	ID          string
	LastName    string
	FirstName   string
	MiddleName  string
	DateOfBirth *time.Time
	Sex         string
	Street      string
	Street2     string
	City        string
	State       string
	PostalCode  string
	Country     string
	Phone       string
}

// ExternalOrder is the order/report context carried in OBR.
type ExternalOrder struct {
	AccessionNumber   string
	Description       string
	OrderingPhysician string
	ResultStatus      string
	Interpreter       string
}

func patientFromPID(pid hl7.Segment) ExternalPatient {
	return ExternalPatient{
		ID:          strings.TrimSpace(pid.Component(3, 1)),
		LastName:    pid.Component(5, 1),
		FirstName:   pid.Component(5, 2),
		MiddleName:  pid.Component(5, 3),
		DateOfBirth: parseDate(pid.Field(7)),
		Sex:         pid.Field(8),
		Street:      pid.Component(11, 1),
		Street2:     pid.Component(11, 2),
		City:        pid.Component(11, 3),
		State:       pid.Component(11, 4),
		PostalCode:  pid.Component(11, 5),
		Country:     pid.Component(11, 6),
		Phone:       phone(pid),
	}
}

func orderFromOBR(obr hl7.Segment) ExternalOrder {
	description := obr.Component(4, 2)
	if description == "" {
		description = obr.Component(4, 1)
	}
	return ExternalOrder{
		AccessionNumber:   strings.TrimSpace(obr.Component(3, 1)),
		Description:       description,
		OrderingPhysician: personName(obr.Components(16), "^"),
		ResultStatus:      strings.ToUpper(strings.TrimSpace(obr.Field(25))),
		Interpreter:       personName(strings.Split(obr.Component(32, 1), "&"), "&"),
	}
}

// ReportingPhysician prefers the principal result interpreter and falls back
// to the ordering physician.
func (o ExternalOrder) ReportingPhysician() string {
	if o.Interpreter != "" {
		return o.Interpreter
	}
	return o.OrderingPhysician
}

// IsFinal reports whether OBR-25 marks the result as final.
func (o ExternalOrder) IsFinal() bool {
	return o.ResultStatus == "F"
}

// toPatient builds a new stored patient from the message identity.
func (e ExternalPatient) toPatient() *db.Patient {
	return &db.Patient{
		ExternalID:   e.ID,
		FirstName:    e.FirstName,
		MiddleName:   e.MiddleName,
		LastName:     e.LastName,
		DateOfBirth:  e.DateOfBirth,
		Sex:          e.Sex,
		Phone:        e.Phone,
		AddressLine1: e.Street,
		AddressLine2: e.Street2,
		City:         e.City,
		State:        e.State,
		PostalCode:   e.PostalCode,
		Country:      e.Country,
	}
}

// applyTo overwrites the stored patient's demographics with the non-empty
// values carried in the message. It reports whether anything changed.
func (e ExternalPatient) applyTo(p *db.Patient) bool {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&p.FirstName, e.FirstName)
	set(&p.MiddleName, e.MiddleName)
	set(&p.LastName, e.LastName)
	set(&p.Sex, e.Sex)
	set(&p.Phone, e.Phone)
	set(&p.AddressLine1, e.Street)
	set(&p.AddressLine2, e.Street2)
	set(&p.City, e.City)
	set(&p.State, e.State)
	set(&p.PostalCode, e.PostalCode)
	set(&p.Country, e.Country)
	if e.DateOfBirth != nil && (p.DateOfBirth == nil || !p.DateOfBirth.Equal(*e.DateOfBirth)) {
		p.DateOfBirth = e.DateOfBirth
		changed = true
	}
	return changed
}

// personName formats an XCN-style name (ID, family, given) as "Given Family".
// Values without name components are returned as-is.
func personName(parts []string, sep string) string {
	if len(parts) >= 3 && (parts[1] != "" || parts[2] != "") {
		return strings.TrimSpace(parts[2] + " " + parts[1])
	}
	return strings.TrimSpace(strings.Join(parts, sep))
}

func phone(pid hl7.Segment) string {
	if p := strings.TrimSpace(pid.Component(13, 1)); p != "" {
		return p
	}
	// XTN-12 holds the unformatted number when component 1 is empty.
	return strings.TrimSpace(pid.Component(13, 12))
}

// parseDate accepts HL7 dates (YYYYMMDD, optionally followed by a time).
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if len(s) < 8 {
		return nil
	}
	t, err := time.Parse("20060102", s[:8])
	if err != nil {
		return nil
	}
	return &t
}
