// Package notify implements the Notification Queue (C6): an in-memory FIFO
// of outbound emails drained in batches by a single worker, with pooled SMTP
// and per-message retry. The queue has no length cap; enqueueing never drops
// or rejects an item.
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/Buchi-dev/puretrack/internal/alerts"
	"github.com/Buchi-dev/puretrack/internal/config"
	"github.com/Buchi-dev/puretrack/internal/models"
)

// poolSize and maxPerConnection are the SMTP transport caps named in the
// external interfaces: 5 pooled connections, recycled after 100 messages
// each so a single connection never outlives the server's own idle timeout.
const (
	poolSize         = 5
	maxPerConnection = 100
)

// item is one queued email.
type item struct {
	to      string
	subject string
	html    string
	retries int
}

// conn is one pooled SMTP connection, dialed lazily and recycled once it
// has carried maxPerConnection messages.
type conn struct {
	mu   sync.Mutex
	send gomail.SendCloser
	sent int
}

// Queue is the Notification Queue (C6).
type Queue struct {
	mu    sync.Mutex
	items []item

	dialer *gomail.Dialer
	from   string
	pool   [poolSize]*conn

	batchSize   int
	maxRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration

	lookup alerts.DeviceLookup
	users  UserLister

	stopCh chan struct{}
	doneCh chan struct{}
}

// UserLister is the narrow port for recipients, matching Store's
// listActiveStaffWithEmailNotifications operation.
type UserLister interface {
	ListActiveStaffWithEmailNotifications(ctx context.Context) ([]*models.User, error)
}

func New(smtp config.SMTPConfig, lookup alerts.DeviceLookup, users UserLister, tuning config.TuningConfig) *Queue {
	dialer := gomail.NewDialer(smtp.Host, atoiOr(smtp.Port, 587), smtp.Username, smtp.Password)
	dialer.RetryFailure = true

	q := &Queue{
		dialer:      dialer,
		from:        smtp.From,
		batchSize:   tuning.EmailBatchSize,
		maxRetries:  tuning.EmailMaxRetries,
		backoffBase: tuning.EmailBackoffBase,
		backoffCap:  tuning.EmailBackoffCap,
		lookup:      lookup,
		users:       users,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for i := range q.pool {
		q.pool[i] = &conn{}
	}
	return q
}

// EnqueueAlertEmail fans one new alert out to every active, email-enabled
// staff/admin user. It is called exactly once per alert creation by the
// Alert Engine — never per occurrence — satisfying the debounce invariant.
func (q *Queue) EnqueueAlertEmail(ctx context.Context, a *models.Alert, d *models.Device) error {
	recipients, err := q.users.ListActiveStaffWithEmailNotifications(ctx)
	if err != nil {
		return err
	}
	subject, body := renderAlertEmail(a, d)
	q.mu.Lock()
	for _, u := range recipients {
		q.items = append(q.items, item{to: u.Email, subject: subject, html: body})
	}
	q.mu.Unlock()
	return nil
}

// Start launches the single drain worker.
func (q *Queue) Start() {
	go q.run()
}

func (q *Queue) Stop(timeout time.Duration) {
	close(q.stopCh)
	select {
	case <-q.doneCh:
	case <-time.After(timeout):
		log.Println("notify: drain timed out, stopping with items still queued")
	}
	for _, pc := range q.pool {
		pc.mu.Lock()
		closeConn(pc)
		pc.mu.Unlock()
	}
}

func (q *Queue) run() {
	defer close(q.doneCh)
	for {
		select {
		case <-q.stopCh:
			for q.drainBatch() > 0 {
			}
			return
		default:
		}
		if q.drainBatch() == 0 {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		time.Sleep(1 * time.Second)
	}
}

// drainBatch sends up to batchSize queued items, spreading them across the
// connection pool (round-robin) and awaiting completion of the whole batch
// before returning, and reports how many it attempted.
func (q *Queue) drainBatch() int {
	q.mu.Lock()
	n := q.batchSize
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := append([]item(nil), q.items[:n]...)
	q.items = q.items[n:]
	q.mu.Unlock()

	var wg sync.WaitGroup
	for i, it := range batch {
		wg.Add(1)
		pc := q.pool[i%poolSize]
		go func(pc *conn, it item) {
			defer wg.Done()
			q.sendWithRetry(pc, it)
		}(pc, it)
	}
	wg.Wait()
	return len(batch)
}

// sendWithRetry sends one message over the given pooled connection, dialing
// it on first use and redialing once it crosses maxPerConnection messages
// or a send attempt fails.
func (q *Queue) sendWithRetry(pc *conn, it item) {
	delay := q.backoffBase
	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		m := gomail.NewMessage()
		m.SetHeader("From", q.from)
		m.SetHeader("To", it.to)
		m.SetHeader("Subject", it.subject)
		m.SetBody("text/html", it.html)

		err := q.sendOverPool(pc, m)
		if err == nil {
			return
		}
		if attempt == q.maxRetries {
			log.Printf("notify: dropping email to %s after %d attempts: %v", it.to, attempt+1, err)
			return
		}
		time.Sleep(delay)
		delay *= 2
		if delay > q.backoffCap {
			delay = q.backoffCap
		}
	}
}

// sendOverPool sends one message through pc's persistent SMTP connection,
// dialing or redialing as needed, and recycles the connection once it has
// carried maxPerConnection messages.
func (q *Queue) sendOverPool(pc *conn, m *gomail.Message) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.send == nil {
		s, err := q.dialer.Dial()
		if err != nil {
			return err
		}
		pc.send = s
		pc.sent = 0
	}

	if err := gomail.Send(pc.send, m); err != nil {
		closeConn(pc)
		return err
	}

	pc.sent++
	if pc.sent >= maxPerConnection {
		closeConn(pc)
	}
	return nil
}

// closeConn closes pc's connection if open. Caller holds pc.mu.
func closeConn(pc *conn) {
	if pc.send == nil {
		return
	}
	if err := pc.send.Close(); err != nil {
		log.Printf("notify: closing pooled SMTP connection: %v", err)
	}
	pc.send = nil
	pc.sent = 0
}

func atoiOr(s string, fallback int) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return fallback
	}
	return n
}
