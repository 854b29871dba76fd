package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"finfix/internal/core"
	"finfix/internal/finance"
	"finfix/internal/finance/memory"
	"finfix/internal/onboarding"
	"finfix/internal/session"
)

type countingBackend struct {
	*memory.Store
	mu          sync.Mutex
	catCalls    int
	summaryErr  error
	completeErr error
}

func (b *countingBackend) ListCategories(ctx context.Context) ([]core.Category, error) {
	b.mu.Lock()
	b.catCalls++
	b.mu.Unlock()
	return b.Store.ListCategories(ctx)
}

func (b *countingBackend) FetchSummary(ctx context.Context, userID string) (core.Summary, error) {
	b.mu.Lock()
	err := b.summaryErr
	b.mu.Unlock()
	if err != nil {
		return core.Summary{}, err
	}
	return b.Store.FetchSummary(ctx, userID)
}

func (b *countingBackend) CompleteOnboarding(ctx context.Context, userID string) error {
	if b.completeErr != nil {
		return b.completeErr
	}
	return b.Store.CompleteOnboarding(ctx, userID)
}

type fakePublisher struct {
	mu    sync.Mutex
	users []string
	modes []string
	err   error
}

func (p *fakePublisher) PublishOnboardingCompleted(_ context.Context, userID, mode string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, userID)
	p.modes = append(p.modes, mode)
	return p.err
}

func newOnboardingService(t *testing.T, pub CompletionPublisher) (*OnboardingService, *countingBackend) {
	t.Helper()
	store := memory.New(memory.DefaultCategories())
	store.AddUser(core.Identity{ID: "u1"})
	backend := &countingBackend{Store: store}
	cfg := DefaultOnboardingServiceConfig()
	cfg.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return NewOnboardingService(backend, pub, cfg, nil), backend
}

func userSession(id string, mode session.Mode) session.Session {
	return session.Session{ID: id, Mode: mode, Identity: &core.Identity{ID: "u1"}}
}

func TestFlowIsReusedPerSession(t *testing.T) {
	svc, _ := newOnboardingService(t, nil)
	ctx := context.Background()
	sess := userSession("s1", session.ModeAdmin)

	f1, err := svc.Flow(ctx, sess)
	if err != nil {
		t.Fatalf("Flow: %v", err)
	}
	f1.Store().SetIncomes("1200")

	f2, err := svc.Flow(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	if f1 != f2 || f2.Store().Draft().Incomes != "1200" {
		t.Fatal("expected the same flow with its draft")
	}

	other, _ := svc.Flow(ctx, userSession("s2", session.ModeAdmin))
	if other == f1 {
		t.Fatal("sessions must not share flows")
	}
}

func TestFlowRejectsGuests(t *testing.T) {
	svc, _ := newOnboardingService(t, nil)
	if _, err := svc.Flow(context.Background(), session.Session{ID: "s"}); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestModeSwitchKeepsDraft(t *testing.T) {
	svc, _ := newOnboardingService(t, nil)
	ctx := context.Background()

	f1, _ := svc.Flow(ctx, userSession("s1", session.ModeAdmin))
	f1.Store().SetIncomes("900")
	if got := f1.Sequencer().NextPath(onboarding.StepInstallments); got != "/profile" {
		t.Fatalf("admin landing = %q", got)
	}

	f2, _ := svc.Flow(ctx, userSession("s1", session.ModePWA))
	if got := f2.Sequencer().NextPath(onboarding.StepInstallments); got != "/analytics" {
		t.Fatalf("pwa landing = %q", got)
	}
	if f2.Store() != f1.Store() {
		t.Fatal("mode switch should keep the draft store")
	}
}

func TestCategoriesAreCached(t *testing.T) {
	svc, backend := newOnboardingService(t, nil)
	ctx := context.Background()

	if _, err := svc.Flow(ctx, userSession("s1", session.ModeAdmin)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Flow(ctx, userSession("s2", session.ModeAdmin)); err != nil {
		t.Fatal(err)
	}
	cats, err := svc.Categories(ctx)
	if err != nil || len(cats) == 0 {
		t.Fatalf("categories: %v %v", cats, err)
	}
	if backend.catCalls != 1 {
		t.Fatalf("expected one category fetch, got %d", backend.catCalls)
	}
}

func TestFlowReloadsAfterFailedSummary(t *testing.T) {
	svc, backend := newOnboardingService(t, nil)
	ctx := context.Background()
	sess := userSession("s1", session.ModeAdmin)

	backend.summaryErr = errors.New("backend down")
	flow, err := svc.Flow(ctx, sess)
	var loadErr *onboarding.LoadError
	if !errors.As(err, &loadErr) || flow == nil {
		t.Fatalf("expected a usable flow with a load error, got %v %v", flow, err)
	}
	if flow.Store().Initialized() {
		t.Fatal("store should not be initialized without a summary")
	}

	backend.mu.Lock()
	backend.summaryErr = nil
	backend.mu.Unlock()
	flow, err = svc.Flow(ctx, sess)
	if err != nil || !flow.Store().Initialized() {
		t.Fatalf("expected reload to succeed, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	svc, _ := newOnboardingService(t, nil)
	action, err := svc.Resolve(context.Background(), userSession("s1", session.ModeAdmin), "/onboarding/expenses")
	if err != nil {
		t.Fatal(err)
	}
	if action != onboarding.RedirectTo("/onboarding/currency") {
		t.Fatalf("got %v", action)
	}
}

func TestCompletePublishesAndDiscards(t *testing.T) {
	pub := &fakePublisher{}
	svc, backend := newOnboardingService(t, pub)
	ctx := context.Background()
	sess := userSession("s1", session.ModePWA)

	if _, err := svc.Flow(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if err := svc.Complete(ctx, sess); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if svc.HasFlow("s1") {
		t.Fatal("flow should be discarded on completion")
	}
	if len(pub.users) != 1 || pub.users[0] != "u1" || pub.modes[0] != "pwa" {
		t.Fatalf("published %v %v", pub.users, pub.modes)
	}
	summary, _ := backend.Store.FetchSummary(ctx, "u1")
	if !summary.IsOnboarded {
		t.Fatal("backend should record completion")
	}
}

func TestCompleteProceedsOnFailures(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc, backend := newOnboardingService(t, pub)
	backend.completeErr = errors.New("500")
	ctx := context.Background()
	sess := userSession("s1", session.ModeAdmin)

	err := svc.Complete(ctx, sess)
	var perr *onboarding.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if len(pub.users) != 1 {
		t.Fatal("completion event should still be published")
	}
	if svc.HasFlow("s1") {
		t.Fatal("flow should be discarded even when completion failed")
	}
}

func TestCategoryCacheReturnsCopies(t *testing.T) {
	svc, _ := newOnboardingService(t, nil)
	ctx := context.Background()
	cats, _ := svc.Categories(ctx)
	cats[0].Name = "changed"
	again, _ := svc.Categories(ctx)
	if again[0].Name == "changed" {
		t.Fatal("cached categories leaked a mutation")
	}
}

var _ finance.Backend = (*countingBackend)(nil)
