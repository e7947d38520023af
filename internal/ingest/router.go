package ingest

import (
	"strings"

	"github.com/minasoft/ris-listener/internal/hl7"
)

// MessageType is the closed set of routes an inbound message can take.
type MessageType int

const (
	Unsupported MessageType = iota
	ReportCompletion
	NewOrder
	PatientUpdate
)

func (t MessageType) String() string {
	switch t {
	case ReportCompletion:
		return "report_completion"
	case NewOrder:
		return "new_order"
	case PatientUpdate:
		return "patient_update"
	default:
		return "unsupported"
	}
}

var routes = map[string]MessageType{
	"ORU^R01": ReportCompletion,
	"ORM^O01": NewOrder,
	"ADT^A08": PatientUpdate,
}

// Classify maps MSH-9 onto a MessageType. Only the message code and trigger
// event are compared; a trailing message structure component is ignored.
func Classify(msg *hl7.Message) MessageType {
	header := msg.Header()
	code := strings.ToUpper(strings.TrimSpace(header.Component(9, 1)))
	trigger := strings.ToUpper(strings.TrimSpace(header.Component(9, 2)))
	if t, ok := routes[code+"^"+trigger]; ok {
		return t
	}
	return Unsupported
}
