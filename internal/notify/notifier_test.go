package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minasoft/ris-listener/internal/db"
	natsutil "github.com/minasoft/ris-listener/internal/nats"
)

func TestJetStreamNotifierPublishesRequest(t *testing.T) {
	es, err := natsutil.NewEmbeddedServer(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(es.Shutdown)
	ctx := context.Background()

	n := NewJetStreamNotifier(es.JetStream(), natsutil.NotificationSubject)
	patientID := uuid.New()
	require.NoError(t, n.RequestNotification(ctx, patientID, db.NotifyResultsReadyLogin, map[string]string{"patient_name": "Jane"}))

	stream, err := es.JetStream().Stream(ctx, natsutil.NotificationStream)
	require.NoError(t, err)
	msg, err := stream.GetLastMsgForSubject(ctx, natsutil.NotificationSubject+"."+string(db.NotifyResultsReadyLogin))
	require.NoError(t, err)

	var req db.NotificationRequest
	require.NoError(t, json.Unmarshal(msg.Data, &req))
	assert.Equal(t, patientID, req.PatientID)
	assert.Equal(t, db.NotifyResultsReadyLogin, req.Kind)
	assert.Equal(t, "Jane", req.Variables["patient_name"])
	assert.NotEmpty(t, req.ID)
}
