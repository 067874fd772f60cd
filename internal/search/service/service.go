package service

import (
	"context"
	"time"

	"fractionax_search/internal/pipeline"
	"fractionax_search/internal/search/repository"
	"fractionax_search/internal/search/transport"
	"fractionax_search/internal/selection"
	"fractionax_search/platform/apperr"
	"fractionax_search/platform/logger"

	"github.com/google/uuid"
)

const defaultIdleTTL = 30 * time.Minute

type Service struct {
	repo    *repository.Repository
	deps    pipeline.Deps
	opts    pipeline.Options
	idleTTL time.Duration
	now     func() time.Time
	log     *logger.Logger
}

func New(repo *repository.Repository, deps pipeline.Deps, opts pipeline.Options, idleTTL time.Duration, log *logger.Logger) *Service {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, deps: deps, opts: opts, idleTTL: idleTTL, now: now, log: log}
}

func (s *Service) Create(ctx context.Context) transport.CreateSessionResponse {
	sess := pipeline.New(s.deps, s.opts)
	s.repo.Save(sess)
	s.log.WithContext(ctx).Info("search session created", "session_id", sess.ID().String(), "active", s.repo.Len())
	return transport.CreateSessionResponse{ID: sess.ID().String(), View: sess.View()}
}

func (s *Service) View(id uuid.UUID) (pipeline.View, error) {
	sess, err := s.get(id)
	if err != nil {
		return pipeline.View{}, err
	}
	return sess.View(), nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	sess, ok := s.repo.Delete(id)
	if !ok {
		return notFound("search.Delete")
	}
	sess.Close()
	s.log.WithContext(ctx).Info("search session closed", "session_id", id.String())
	return nil
}

func (s *Service) Input(id uuid.UUID, req transport.InputRequest) (pipeline.View, error) {
	sess, err := s.get(id)
	if err != nil {
		return pipeline.View{}, err
	}
	sess.Input(req.Text)
	return sess.View(), nil
}

func (s *Service) Key(ctx context.Context, id uuid.UUID, req transport.KeyRequest) (transport.KeyResponse, error) {
	sess, err := s.get(id)
	if err != nil {
		return transport.KeyResponse{}, err
	}
	consumed := sess.Key(ctx, selection.Key(req.Key))
	return transport.KeyResponse{Consumed: consumed, View: sess.View()}, nil
}

func (s *Service) Focus(id uuid.UUID) (pipeline.View, error) {
	sess, err := s.get(id)
	if err != nil {
		return pipeline.View{}, err
	}
	sess.Focus()
	return sess.View(), nil
}

func (s *Service) Pointer(id uuid.UUID, req transport.PointerRequest) (pipeline.View, error) {
	sess, err := s.get(id)
	if err != nil {
		return pipeline.View{}, err
	}
	sess.Pointer(selection.Region(req.Region))
	return sess.View(), nil
}

func (s *Service) Select(ctx context.Context, id uuid.UUID, index int) (pipeline.View, error) {
	sess, err := s.get(id)
	if err != nil {
		return pipeline.View{}, err
	}
	if err := sess.Click(ctx, index); err != nil {
		return pipeline.View{}, err
	}
	return sess.View(), nil
}

// Search dispatches the session's input. Rejections and search failures are
// returned as errors; the view still carries the inline message.
func (s *Service) Search(ctx context.Context, id uuid.UUID) (transport.SearchResponse, error) {
	sess, err := s.get(id)
	if err != nil {
		return transport.SearchResponse{}, err
	}
	out, err := sess.Submit(ctx)
	if err != nil {
		return transport.SearchResponse{}, err
	}
	return transport.SearchResponse{Outcome: out, View: sess.View()}, nil
}

func (s *Service) ClearConversation(ctx context.Context, id uuid.UUID) (pipeline.View, error) {
	sess, err := s.get(id)
	if err != nil {
		return pipeline.View{}, err
	}
	sess.ClearConversation(ctx)
	return sess.View(), nil
}

// EvictIdle closes sessions idle longer than the TTL.
func (s *Service) EvictIdle() int {
	idle := s.repo.RemoveIdle(s.now().Add(-s.idleTTL))
	for _, sess := range idle {
		sess.Close()
	}
	if len(idle) > 0 {
		s.log.Info("evicted idle search sessions", "count", len(idle), "active", s.repo.Len())
	}
	return len(idle)
}

// RunJanitor evicts idle sessions until ctx is done, then closes the rest.
func (s *Service) RunJanitor(ctx context.Context) error {
	interval := s.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, sess := range s.repo.RemoveAll() {
				sess.Close()
			}
			return nil
		case <-ticker.C:
			s.EvictIdle()
		}
	}
}

func (s *Service) get(id uuid.UUID) (*pipeline.Session, error) {
	sess, ok := s.repo.Get(id)
	if !ok {
		return nil, notFound("search.Get")
	}
	return sess, nil
}

func notFound(op string) error {
	return apperr.NotFound("search session not found").WithOp(op)
}
