package notify

import (
	"context"
	"testing"

	"github.com/Buchi-dev/puretrack/internal/config"
	"github.com/Buchi-dev/puretrack/internal/models"
)

type fakeUserLister struct {
	users []*models.User
}

func (f *fakeUserLister) ListActiveStaffWithEmailNotifications(ctx context.Context) ([]*models.User, error) {
	return f.users, nil
}

// L1-adjacent: EnqueueAlertEmail fans one alert out to every qualifying
// recipient, queueing one item per recipient rather than one per alert.
func TestEnqueueAlertEmailFansOutPerRecipient(t *testing.T) {
	users := &fakeUserLister{users: []*models.User{
		{ID: "u1", Email: "a@example.com"},
		{ID: "u2", Email: "b@example.com"},
	}}
	q := New(config.SMTPConfig{Host: "localhost", Port: "587"}, nil, users, config.TuningConfig{EmailBatchSize: 10})

	a := &models.Alert{DeviceID: "tank-01", DeviceName: "Tank One", Parameter: models.ParamPH, Severity: models.SeverityCritical}
	if err := q.EnqueueAlertEmail(context.Background(), a, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if len(q.items) != 2 {
		t.Fatalf("expected one queued item per recipient, got %d", len(q.items))
	}
	if q.items[0].to != "a@example.com" || q.items[1].to != "b@example.com" {
		t.Fatalf("expected items addressed to each recipient in order, got %+v", q.items)
	}
}

func TestEnqueueAlertEmailNoRecipientsQueuesNothing(t *testing.T) {
	q := New(config.SMTPConfig{Host: "localhost", Port: "587"}, nil, &fakeUserLister{}, config.TuningConfig{EmailBatchSize: 10})

	if err := q.EnqueueAlertEmail(context.Background(), &models.Alert{}, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(q.items) != 0 {
		t.Fatalf("expected no queued items when there are no recipients, got %d", len(q.items))
	}
}

func TestDrainBatchRespectsBatchSizeCap(t *testing.T) {
	// Port 1 refuses the dial at once, so each send fails on its single
	// attempt (EmailMaxRetries is 0) and drainBatch returns promptly.
	q := New(config.SMTPConfig{Host: "127.0.0.1", Port: "1"}, nil, &fakeUserLister{}, config.TuningConfig{EmailBatchSize: 2})
	q.items = []item{{to: "a"}, {to: "b"}, {to: "c"}}

	n := q.drainBatch()
	if n != 2 {
		t.Fatalf("expected batch cap to take the smaller of batchSize and queue length, got %d", n)
	}
	if len(q.items) != 1 {
		t.Fatalf("expected one item left queued after a capped batch, got %d", len(q.items))
	}
}

func TestAtoiOrParsesDigitsAndFallsBack(t *testing.T) {
	if got := atoiOr("587", 25); got != 587 {
		t.Fatalf("expected 587, got %d", got)
	}
	if got := atoiOr("", 25); got != 25 {
		t.Fatalf("expected fallback for empty string, got %d", got)
	}
	if got := atoiOr("not-a-port", 25); got != 25 {
		t.Fatalf("expected fallback for non-numeric input, got %d", got)
	}
	if got := atoiOr("0", 25); got != 25 {
		t.Fatalf("expected fallback for a literal zero (treated as unset), got %d", got)
	}
}
