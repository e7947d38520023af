// Package notifytest provides notify doubles for tests.
package notifytest

import (
	"context"
	"sync"
)

// SMSCall records one SendSMS call.
type SMSCall struct {
	To   string
	Body string
}

// RecordingSMSSender keeps every message it is asked to send. Err, when set,
// is returned from each call after recording it.
type RecordingSMSSender struct {
	mu    sync.Mutex
	calls []SMSCall
	Err   error
}

func (r *RecordingSMSSender) SendSMS(_ context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, SMSCall{To: to, Body: body})
	return r.Err
}

func (r *RecordingSMSSender) Calls() []SMSCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SMSCall, len(r.calls))
	copy(out, r.calls)
	return out
}
