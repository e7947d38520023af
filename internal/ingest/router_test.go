package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minasoft/ris-listener/internal/hl7"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		messageType string
		want        MessageType
	}{
		{"ORU^R01", ReportCompletion},
		{"ORU^R01^ORU_R01", ReportCompletion},
		{"oru^r01", ReportCompletion},
		{"ORM^O01", NewOrder},
		{"ADT^A08", PatientUpdate},
		{"ADT^A01", Unsupported},
		{"ORU", Unsupported},
		{"", Unsupported},
	}
	for _, tt := range tests {
		t.Run(tt.messageType, func(t *testing.T) {
			msg, err := hl7.NewParser(hl7.SeparatorCR).Parse([]byte(msh(tt.messageType, "1")))
			require.NoError(t, err)
			assert.Equal(t, tt.want, Classify(msg))
		})
	}
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "report_completion", ReportCompletion.String())
	assert.Equal(t, "new_order", NewOrder.String())
	assert.Equal(t, "patient_update", PatientUpdate.String())
	assert.Equal(t, "unsupported", Unsupported.String())
}
