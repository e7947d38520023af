package notifytest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingSMSSender(t *testing.T) {
	sender := &RecordingSMSSender{}
	require.NoError(t, sender.SendSMS(context.Background(), "555", "hello"))

	sender.Err = errors.New("gateway down")
	assert.Error(t, sender.SendSMS(context.Background(), "556", "again"))

	calls := sender.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, SMSCall{To: "555", Body: "hello"}, calls[0])
}
