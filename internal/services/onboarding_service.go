package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"finfix/internal/cache"
	"finfix/internal/core"
	"finfix/internal/finance"
	"finfix/internal/log"
	"finfix/internal/onboarding"
	"finfix/internal/session"
)

var ErrNotAuthenticated = errors.New("session is not authenticated")

// CompletionPublisher announces finished onboardings. *amqp.Client
// implements it.
type CompletionPublisher interface {
	PublishOnboardingCompleted(ctx context.Context, userID, mode string) error
}

type OnboardingServiceConfig struct {
	// FlowTTL is how long an idle flow is kept (default: 2h)
	FlowTTL time.Duration

	// MaxFlows bounds the number of live flows (default: 1000)
	MaxFlows int

	// CategoryTTL is how long fetched categories are reused (default: 5m)
	CategoryTTL time.Duration

	// Now is the clock handed to draft stores (default: time.Now)
	Now func() time.Time
}

func DefaultOnboardingServiceConfig() OnboardingServiceConfig {
	return OnboardingServiceConfig{
		FlowTTL:     2 * time.Hour,
		MaxFlows:    1000,
		CategoryTTL: 5 * time.Minute,
		Now:         time.Now,
	}
}

const categoriesKey = "categories"

// OnboardingService keeps one wizard flow per browser session.
type OnboardingService struct {
	backend   finance.Backend
	publisher CompletionPublisher
	logger    *log.Logger
	now       func() time.Time

	mu         sync.Mutex
	flows      *cache.LRUCache[*onboarding.Flow]
	categories *cache.LRUCache[[]core.Category]
}

// NewOnboardingService builds the service. publisher may be nil.
func NewOnboardingService(backend finance.Backend, publisher CompletionPublisher, config OnboardingServiceConfig, logger *log.Logger) *OnboardingService {
	def := DefaultOnboardingServiceConfig()
	if config.FlowTTL <= 0 {
		config.FlowTTL = def.FlowTTL
	}
	if config.MaxFlows <= 0 {
		config.MaxFlows = def.MaxFlows
	}
	if config.CategoryTTL <= 0 {
		config.CategoryTTL = def.CategoryTTL
	}
	if config.Now == nil {
		config.Now = def.Now
	}
	if logger == nil {
		logger = log.Discard()
	}

	s := &OnboardingService{
		publisher:  publisher,
		logger:     logger.WithComponent(log.ComponentOnboarding),
		now:        config.Now,
		flows:      cache.NewLRUCache[*onboarding.Flow](config.MaxFlows, config.FlowTTL),
		categories: cache.NewLRUCache[[]core.Category](1, config.CategoryTTL),
	}
	s.backend = &categoryCachingBackend{Backend: backend, cache: s.categories}
	return s
}

// Caches returns the caches that need periodic cleanup.
func (s *OnboardingService) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.flows, s.categories}
}

// Flow returns the session's flow, creating and loading it on first use. A
// flow whose summary could not be loaded is loaded again on the next call.
// Load failures are logged and returned alongside the usable flow.
func (s *OnboardingService) Flow(ctx context.Context, sess session.Session) (*onboarding.Flow, error) {
	if !sess.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	ctx = finance.WithToken(ctx, sess.Token)
	landing := sess.Mode.LandingPath()

	s.mu.Lock()
	flow, ok := s.flows.Get(sess.ID)
	switch {
	case !ok || flow.UserID() != sess.UserID():
		store := onboarding.NewStore(onboarding.WithClock(s.now))
		flow = onboarding.NewFlow(sess.UserID(), onboarding.NewSequencer(landing), store, s.backend, s.logger)
		s.flows.Set(sess.ID, flow)
	case flow.Sequencer().Landing() != landing:
		// mode switched mid-wizard; keep the draft
		flow = onboarding.NewFlow(sess.UserID(), onboarding.NewSequencer(landing), flow.Store(), s.backend, s.logger)
		s.flows.Set(sess.ID, flow)
	default:
		s.flows.Touch(sess.ID)
	}
	s.mu.Unlock()

	if flow.Store().Initialized() {
		return flow, nil
	}
	if _, err := flow.Load(ctx); err != nil {
		return flow, err
	}
	return flow, nil
}

// Resolve runs the resume resolver for path against a fresh summary.
func (s *OnboardingService) Resolve(ctx context.Context, sess session.Session, path string) (onboarding.Action, error) {
	flow, err := s.Flow(ctx, sess)
	if flow == nil {
		return onboarding.Stay(), err
	}
	return flow.Resolve(finance.WithToken(ctx, sess.Token), path)
}

// Complete marks onboarding as finished, publishes the completion event and
// drops the flow. A failed backend call is returned but does not stop the
// rest: the user proceeds either way.
func (s *OnboardingService) Complete(ctx context.Context, sess session.Session) error {
	if !sess.Authenticated() {
		return ErrNotAuthenticated
	}
	ctx = finance.WithToken(ctx, sess.Token)

	flow, _ := s.Flow(ctx, sess)
	var completeErr error
	if flow != nil {
		completeErr = flow.Complete(ctx)
	}
	if completeErr != nil {
		s.logger.ErrorContext(ctx, "Failed to mark onboarding complete", log.FieldUserID, sess.UserID(), log.FieldError, completeErr)
	} else {
		s.logger.InfoContext(ctx, "Onboarding completed", log.FieldUserID, sess.UserID(), log.FieldMode, sess.Mode)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishOnboardingCompleted(ctx, sess.UserID(), string(sess.Mode)); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish onboarding completed event",
				log.NewFields().WithOperation(log.OpPublish).WithError(err).ToSlice()...)
		}
	}

	s.Discard(sess.ID)
	return completeErr
}

// Discard drops the session's flow, e.g. when the user leaves the wizard.
func (s *OnboardingService) Discard(sessionID string) {
	s.flows.Delete(sessionID)
}

// HasFlow reports whether the session has a live flow.
func (s *OnboardingService) HasFlow(sessionID string) bool {
	_, ok := s.flows.Get(sessionID)
	return ok
}

// Categories returns the cached category list.
func (s *OnboardingService) Categories(ctx context.Context) ([]core.Category, error) {
	return s.backend.ListCategories(ctx)
}

// categoryCachingBackend serves ListCategories from the cache and forwards
// everything else.
type categoryCachingBackend struct {
	finance.Backend
	cache *cache.LRUCache[[]core.Category]
}

func (b *categoryCachingBackend) ListCategories(ctx context.Context) ([]core.Category, error) {
	cats, err := b.cache.GetOrLoad(categoriesKey, func() ([]core.Category, error) {
		return b.Backend.ListCategories(ctx)
	})
	if err != nil {
		return nil, err
	}
	out := make([]core.Category, len(cats))
	copy(out, cats)
	return out, nil
}
