package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"time"

	"github.com/resend/resend-go/v3"
)

// Recipient is the contact data of a user, owned by the identity service.
type Recipient struct {
	ID    int64
	Email string
	Name  string
}

// RecipientDirectory resolves user ids to contact data. Unknown ids are omitted.
type RecipientDirectory interface {
	Recipients(ctx context.Context, ids []int64) (map[int64]Recipient, error)
}

type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// ResendMailer sends mail through the Resend API.
type ResendMailer struct {
	client *resend.Client
	from   string
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{client: resend.NewClient(apiKey), from: from}
}

func (m *ResendMailer) Send(_ context.Context, to, subject, html string) error {
	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	}
	_, err := m.client.Emails.Send(params)
	return err
}

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #222;">
<p>Hello {{.Name}},</p>
<p>You have {{len .Items}} unread collaboration update{{if gt (len .Items) 1}}s{{end}}:</p>
<ul>
{{range .Items}}<li><strong>{{.Title}}</strong>{{if .Message}}: {{.Message}}{{end}}</li>
{{end}}</ul>
<p><a href="{{.Link}}">Open your notifications</a></p>
</body></html>`))

type DigestConfig struct {
	// Delay is how long an event stays unread before it is mailed.
	Delay     time.Duration
	BatchSize int
	// MaxAttempts is how many failed sends an event survives before it is
	// left out of digests.
	MaxAttempts int
	// BaseURL is the web app root used for links.
	BaseURL string
}

// DigestJob mails one summary per recipient of events that stayed unread,
// for users who did not opt out. Each event is mailed at most once.
type DigestJob struct {
	repo   Repository
	dir    RecipientDirectory
	mailer Mailer
	cfg    DigestConfig
	now    func() time.Time
}

func NewDigestJob(repo Repository, dir RecipientDirectory, mailer Mailer, cfg DigestConfig) *DigestJob {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &DigestJob{repo: repo, dir: dir, mailer: mailer, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// RunOnce sends the digests due now and returns how many emails went out.
// It pages through the whole backlog, so a recipient whose sends keep failing
// does not hold back the others.
func (j *DigestJob) RunOnce(ctx context.Context) (int, error) {
	now := j.now()
	filter := DigestFilter{
		Cutoff:      now.Add(-j.cfg.Delay),
		MaxAttempts: j.cfg.MaxAttempts,
		Limit:       j.cfg.BatchSize,
	}

	// Recipients handled this run; their events in later pages wait for the next run.
	handled := make(map[int64]bool)
	sent, events := 0, 0
	for {
		pending, err := j.repo.PendingDigest(ctx, filter)
		if err != nil {
			return sent, fmt.Errorf("load digest backlog: %w", err)
		}
		if len(pending) == 0 {
			break
		}
		filter.AfterSeq = pending[len(pending)-1].Seq
		events += len(pending)

		n, err := j.sendBatch(ctx, pending, handled, now)
		sent += n
		if err != nil {
			return sent, err
		}
		if len(pending) < filter.Limit {
			break
		}
	}

	if events > 0 {
		log.Printf("digest_run recipients=%d emails=%d events=%d", len(handled), sent, events)
	}
	return sent, nil
}

func (j *DigestJob) sendBatch(ctx context.Context, pending []Notification, handled map[int64]bool, now time.Time) (int, error) {
	byUser := make(map[int64][]Notification)
	var order []int64
	for _, n := range pending {
		if handled[n.RecipientID] {
			continue
		}
		if _, ok := byUser[n.RecipientID]; !ok {
			order = append(order, n.RecipientID)
		}
		byUser[n.RecipientID] = append(byUser[n.RecipientID], n)
	}
	if len(order) == 0 {
		return 0, nil
	}

	contacts, err := j.dir.Recipients(ctx, order)
	if err != nil {
		return 0, fmt.Errorf("resolve recipients: %w", err)
	}

	sent := 0
	for _, userID := range order {
		handled[userID] = true
		items := byUser[userID]
		seqs := make([]int64, len(items))
		for i, n := range items {
			seqs[i] = n.Seq
		}

		prefs, err := j.repo.GetPreferences(ctx, userID)
		if err != nil {
			log.Printf("digest_skip user_id=%d reason=preferences err=%v", userID, err)
			continue
		}
		contact, ok := contacts[userID]
		if prefs.EmailDigestEnabled && ok && contact.Email != "" {
			html, err := renderDigest(contact, items, j.cfg.BaseURL)
			if err != nil {
				return sent, err
			}
			subject := fmt.Sprintf("%d unread collaboration update(s)", len(items))
			if err := j.mailer.Send(ctx, contact.Email, subject, html); err != nil {
				log.Printf("digest_send_failed user_id=%d events=%d err=%v", userID, len(seqs), err)
				if err := j.repo.RecordDigestFailure(ctx, seqs); err != nil {
					return sent, fmt.Errorf("record digest failure: %w", err)
				}
				continue
			}
			sent++
		}

		// Opted-out or unreachable users are stamped too, so they are not rescanned.
		if err := j.repo.MarkEmailed(ctx, seqs, now); err != nil {
			return sent, fmt.Errorf("mark emailed: %w", err)
		}
	}
	return sent, nil
}

// Schedule runs RunOnce every interval until ctx is done or the returned channel is closed.
func (j *DigestJob) Schedule(ctx context.Context, interval time.Duration) chan struct{} {
	stopCh := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := j.RunOnce(ctx); err != nil {
					log.Printf("digest_error err=%v", err)
				}
			case <-stopCh:
				log.Println("Scheduled digest stopped")
				return
			case <-ctx.Done():
				log.Println("Scheduled digest stopped (context Done)")
				return
			}
		}
	}()

	log.Printf("Scheduled digest started with interval %v", interval)
	return stopCh
}

func renderDigest(r Recipient, items []Notification, baseURL string) (string, error) {
	name := r.Name
	if name == "" {
		name = r.Email
	}

	var buf bytes.Buffer
	err := digestTemplate.Execute(&buf, struct {
		Name  string
		Items []Notification
		Link  string
	}{Name: name, Items: items, Link: baseURL + "/notifications"})
	if err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}
