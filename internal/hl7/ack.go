package hl7

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Acknowledgement codes written to MSA-1.
const (
	AckAccepted = "AA"
	AckError    = "AE"
)

const defaultVersion = "2.5"

// AckResult is the outcome of processing one inbound message. Exactly one is
// produced per received frame.
type AckResult struct {
	ControlID string
	Accepted  bool
	Reason    string
}

// Accepted builds a positive result for controlID.
func Accepted(controlID string) AckResult {
	return AckResult{ControlID: controlID, Accepted: true}
}

// AcceptedWithNote builds a positive result carrying a free-text note, used
// when the message was valid but needs operator attention.
func AcceptedWithNote(controlID, note string) AckResult {
	return AckResult{ControlID: controlID, Accepted: true, Reason: note}
}

// Rejected builds a negative result for controlID.
func Rejected(controlID, reason string) AckResult {
	return AckResult{ControlID: controlID, Reason: reason}
}

// Code returns the MSA-1 acknowledgement code.
func (r AckResult) Code() string {
	if r.Accepted {
		return AckAccepted
	}
	return AckError
}

// Identity names this system in outgoing MSH-3/MSH-4 when the inbound
// message did not address it explicitly.
type Identity struct {
	Application string
	Facility    string
}

// BuildACK creates the acknowledgement payload (unframed) for the original
// header. header may be nil when the inbound frame could not be parsed.
func BuildACK(header *Segment, result AckResult, self Identity, now time.Time) []byte {
	var (
		sendingApp, sendingFac     = self.Application, self.Facility
		receivingApp, receivingFac string
		trigger                    string
		version                    = defaultVersion
	)

	if header != nil {
		if app := header.Field(5); app != "" {
			sendingApp = app
		}
		if fac := header.Field(6); fac != "" {
			sendingFac = fac
		}
		receivingApp = header.Field(3)
		receivingFac = header.Field(4)
		trigger = header.Component(9, 2)
		if v := header.Field(12); v != "" {
			version = v
		}
	}

	msgType := "ACK"
	if trigger != "" {
		msgType += DefaultComponentSeparator + trigger
	}

	msh := Segment{
		Type: "MSH",
		Fields: []string{
			DefaultEncodingCharacters,
			routingField(sendingApp),
			routingField(sendingFac),
			routingField(receivingApp),
			routingField(receivingFac),
			now.Format("20060102150405"),
			"",
			msgType,
			newControlID(),
			"P",
			version,
		},
	}
	msa := Segment{
		Type: "MSA",
		Fields: []string{
			result.Code(),
			escape(result.ControlID),
			escape(result.Reason),
		},
	}

	return []byte(msh.String() + SeparatorCR + msa.String())
}

// ParseACK extracts the acknowledgement code, referenced control ID and text
// from an ACK payload.
func ParseACK(payload []byte) (AckResult, error) {
	msg, err := NewParser(SeparatorCR).Parse(payload)
	if err != nil {
		return AckResult{}, err
	}
	msa, ok := msg.Segment("MSA")
	if !ok {
		return AckResult{}, &MissingSegmentError{Segment: "MSA"}
	}
	code := msa.Field(1)
	return AckResult{
		ControlID: msa.Field(2),
		Accepted:  code == AckAccepted || code == "CA",
		Reason:    msa.Field(3),
	}, nil
}

// MissingSegmentError reports a required segment absent from a message.
type MissingSegmentError struct {
	Segment string
}

func (e *MissingSegmentError) Error() string {
	return "gerekli segment eksik: " + e.Segment
}

// newControlID returns a server-assigned control ID that fits the 20
// character MSH-10 limit.
func newControlID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:20]
}

// escape keeps free text from breaking the segment structure.
// routingField keeps HD components (namespace^universal ID^type) intact so
// the sender can match the ACK against its own MSH-3/4.
func routingField(s string) string {
	return strings.NewReplacer(
		"\r", "",
		"\n", "",
		"|", "",
	).Replace(s)
}

func escape(s string) string {
	return strings.NewReplacer(
		"\r", " ",
		"\n", " ",
		"|", " ",
		"^", " ",
		"~", " ",
	).Replace(s)
}
