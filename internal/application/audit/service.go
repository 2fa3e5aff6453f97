package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/njala-api/internal/domain"
	"github.com/njala-api/internal/pkg/id"
	"github.com/njala-api/internal/pkg/metrics"
)

const (
	defaultBufferSize = 256
	writeTimeout      = 5 * time.Second
	maxListLimit      = 500
)

type logStore interface {
	Put(ctx context.Context, l *domain.AuditLog) error
	List(ctx context.Context, limit int32) ([]domain.AuditLog, error)
}

// Service records security-relevant actions. Record never blocks the caller
// and never returns an error: a full queue drops the entry, a failed write is logged.
type Service interface {
	Record(ctx context.Context, subject *domain.User, action, description string)
	List(ctx context.Context, limit int) ([]domain.AuditLog, error)
	Close()
}

type ServiceDeps struct {
	Repo       logStore
	Metrics    *metrics.Metrics
	BufferSize int
	Now        func() time.Time
}

type service struct {
	repo      logStore
	metrics   *metrics.Metrics
	now       func() time.Time
	ch        chan *domain.AuditLog
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewService(deps ServiceDeps) Service {
	if deps.BufferSize <= 0 {
		deps.BufferSize = defaultBufferSize
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &service{
		repo:    deps.Repo,
		metrics: deps.Metrics,
		now:     deps.Now,
		ch:      make(chan *domain.AuditLog, deps.BufferSize),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Record enqueues an entry. subject, when set, names the account the action
// concerns; otherwise the caller attached by WithActor is used, or Anonymous.
func (s *service) Record(ctx context.Context, subject *domain.User, action, description string) {
	entry := &domain.AuditLog{
		LogID:       id.New(),
		Timestamp:   s.now().UTC(),
		UserID:      domain.AnonymousActor,
		Action:      action,
		Description: description,
		IPAddress:   IPFrom(ctx),
	}
	switch a, ok := actorFrom(ctx); {
	case subject != nil:
		entry.UserID = subject.UserID
		email := subject.Email
		entry.UserEmail = &email
	case ok:
		entry.UserID = a.userID
		email := a.email
		entry.UserEmail = &email
	}

	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- entry:
	case <-s.done:
	default:
		s.metrics.AuditDropped()
		slog.Warn("audit queue full, entry dropped", "action", action, "user_id", entry.UserID)
	}
}

func (s *service) List(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.List(ctx, int32(limit))
}

// Close stops accepting entries and waits until the queue is drained.
func (s *service) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		s.wg.Wait()
	})
}

func (s *service) run() {
	defer s.wg.Done()
	for {
		select {
		case e := <-s.ch:
			s.write(e)
		case <-s.done:
			for {
				select {
				case e := <-s.ch:
					s.write(e)
				default:
					return
				}
			}
		}
	}
}

func (s *service) write(e *domain.AuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.repo.Put(ctx, e); err != nil {
		s.metrics.AuditFailed()
		slog.Error("failed to write audit log", "action", e.Action, "user_id", e.UserID, "err", err)
	}
}
