package notification

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Service is the read side of delivery: backlog, unread counts and read-state
// changes. Read-state changes are echoed to the user's other sessions.
type Service struct {
	repo   Repository
	broker Broker
	now    func() time.Time
}

func NewService(repo Repository, broker Broker) *Service {
	return &Service{repo: repo, broker: broker, now: func() time.Time { return time.Now().UTC() }}
}

type Page struct {
	Items       []Notification
	NextCursor  string
	HasMore     bool
	UnreadCount int64
}

// List returns one page of the recipient's backlog, newest first. The cursor
// is opaque to clients; pass back NextCursor to continue.
func (s *Service) List(ctx context.Context, userID int64, cursor string, limit int) (*Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	var before int64
	if cursor != "" {
		v, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil || v <= 0 {
			return nil, ErrInvalidCursor
		}
		before = v
	}

	items, err := s.repo.List(ctx, userID, before, limit+1)
	if err != nil {
		return nil, err
	}

	page := &Page{}
	if len(items) > limit {
		items = items[:limit]
		page.HasMore = true
		page.NextCursor = strconv.FormatInt(items[len(items)-1].Seq, 10)
	}
	page.Items = items

	if page.UnreadCount, err = s.repo.CountUnread(ctx, userID); err != nil {
		return nil, err
	}
	return page, nil
}

func (s *Service) Get(ctx context.Context, userID int64, id string) (*Notification, error) {
	return s.repo.GetByID(ctx, userID, id)
}

func (s *Service) GetUnreadCount(ctx context.Context, userID int64) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *Service) MarkAsRead(ctx context.Context, userID int64, id string) error {
	changed, err := s.repo.MarkRead(ctx, userID, id, s.now())
	if err != nil {
		return err
	}
	if changed {
		s.publish(ctx, userID, ReadEnvelope(id))
		s.publishCount(ctx, userID)
	}
	return nil
}

func (s *Service) MarkAllAsRead(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, err
	}
	s.publish(ctx, userID, ReadAllEnvelope())
	s.publishCount(ctx, userID)
	return n, nil
}

// Delete removes one notification at the recipient's request.
func (s *Service) Delete(ctx context.Context, userID int64, id string) error {
	n, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if !n.IsRead {
		s.publishCount(ctx, userID)
	}
	return nil
}

func (s *Service) GetPreferences(ctx context.Context, userID int64) (*Preferences, error) {
	return s.repo.GetPreferences(ctx, userID)
}

func (s *Service) UpdatePreferences(ctx context.Context, userID int64, req UpdatePreferencesRequest) (*Preferences, error) {
	p, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.Apply(req)
	p.UpdatedAt = s.now()
	if err := s.repo.SavePreferences(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ResetPreferences(ctx context.Context, userID int64) (*Preferences, error) {
	p := DefaultPreferences(userID)
	p.UpdatedAt = s.now()
	if err := s.repo.SavePreferences(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) publishCount(ctx context.Context, userID int64) {
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		log.Printf("notification_count_failed user_id=%d err=%v", userID, err)
		return
	}
	s.publish(ctx, userID, CountEnvelope(unread))
}

func (s *Service) publish(ctx context.Context, userID int64, env *Envelope) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, userID, env); err != nil {
		log.Printf("notification_push_failed user_id=%d type=%s err=%v", userID, env.Type, err)
	}
}
