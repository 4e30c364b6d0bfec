package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	To, Subject, HTML string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, html string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, HTML: html})
	return nil
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, to, subject, html string) error {
	args := m.Called(ctx, to, subject, html)
	return args.Error(0)
}

type fakeDirectory map[int64]Recipient

func (d fakeDirectory) Recipients(_ context.Context, ids []int64) (map[int64]Recipient, error) {
	out := make(map[int64]Recipient)
	for _, id := range ids {
		if r, ok := d[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func newDigestJob(repo Repository, mailer Mailer) *DigestJob {
	return newDigestJobWithConfig(repo, mailer, DigestConfig{Delay: 30 * time.Minute, BaseURL: "https://app.test"})
}

func newDigestJobWithConfig(repo Repository, mailer Mailer, cfg DigestConfig) *DigestJob {
	dir := fakeDirectory{
		1: {ID: 1, Email: "owner@example.com", Name: "Olga"},
		2: {ID: 2, Email: "agent@example.com", Name: "Arman"},
	}
	job := NewDigestJob(repo, dir, mailer, cfg)
	job.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	return job
}

func TestDigest_OneMailPerRecipientThenDone(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))
	mailer := &fakeMailer{}
	job := newDigestJob(repo, mailer)

	seed(t, repo, 1, "Contract updated")
	seed(t, repo, 1, "Step completed")
	seed(t, repo, 2, "Proposal accepted")

	sent, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "owner@example.com", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].HTML, "Contract updated")
	assert.Contains(t, mailer.sent[0].HTML, "Step completed")
	assert.Contains(t, mailer.sent[0].HTML, "https://app.test/notifications")

	sent, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestDigest_SkipsReadAndOptedOut(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))
	mailer := &fakeMailer{}
	job := newDigestJob(repo, mailer)

	read := seed(t, repo, 1, "already seen")
	_, err := repo.MarkRead(ctx, 1, read.ID, time.Now().UTC())
	require.NoError(t, err)

	prefs := DefaultPreferences(2)
	prefs.EmailDigestEnabled = false
	require.NoError(t, repo.SavePreferences(ctx, prefs))
	seed(t, repo, 2, "muted")

	sent, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, mailer.sent)

	pending, err := repo.PendingDigest(ctx, DigestFilter{Cutoff: job.now(), Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDigest_RecentEventsWait(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	mailer := &fakeMailer{}
	job := newDigestJob(repo, mailer)
	job.now = func() time.Time { return time.Now().UTC() }

	seed(t, repo, 1, "fresh")

	sent, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestDigest_SendFailureRetries(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))
	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, "owner@example.com", mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Return(errors.New("smtp down")).Once()
	mailer.On("Send", mock.Anything, "owner@example.com", mock.Anything, mock.Anything).
		Return(nil).Once()
	job := newDigestJob(repo, mailer)

	seed(t, repo, 1, "a")

	sent, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	sent, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	mailer.AssertExpectations(t)
	mailer.AssertNumberOfCalls(t, "Send", 2)
}

func TestDigest_FailingRecipientDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))
	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, "owner@example.com", mock.Anything, mock.Anything).
		Return(errors.New("mailbox unavailable"))
	mailer.On("Send", mock.Anything, "agent@example.com", mock.Anything, mock.Anything).
		Return(nil).Once()
	job := newDigestJobWithConfig(repo, mailer, DigestConfig{Delay: 30 * time.Minute, BatchSize: 2})

	seed(t, repo, 1, "one")
	seed(t, repo, 1, "two")
	seed(t, repo, 1, "three")
	seed(t, repo, 2, "for the agent")

	sent, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	pending, err := repo.PendingDigest(ctx, DigestFilter{Cutoff: job.now(), Limit: 10})
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for _, n := range pending {
		assert.Equal(t, int64(1), n.RecipientID)
	}
	mailer.AssertNumberOfCalls(t, "Send", 2)
}

func TestDigest_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))
	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, "owner@example.com", mock.Anything, mock.Anything).
		Return(errors.New("domain rejected"))
	job := newDigestJobWithConfig(repo, mailer, DigestConfig{Delay: 30 * time.Minute, BatchSize: 2, MaxAttempts: 2})

	seed(t, repo, 1, "one")
	seed(t, repo, 1, "two")
	seed(t, repo, 1, "three")

	for i := 0; i < 5; i++ {
		sent, err := job.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, sent)
	}

	// Two attempts for the first page, two for the event that spilled over.
	mailer.AssertNumberOfCalls(t, "Send", 4)

	pending, err := repo.PendingDigest(ctx, DigestFilter{Cutoff: job.now(), MaxAttempts: 2, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := repo.PendingDigest(ctx, DigestFilter{Cutoff: job.now(), Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, n := range all {
		assert.Equal(t, 2, n.DigestAttempts)
	}
}
