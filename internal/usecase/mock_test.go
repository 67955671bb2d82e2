//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"license-billing/internal/domain"
	"license-billing/internal/domain/model"
	"license-billing/internal/domain/ports/adapter"
	"license-billing/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// In-memory store shared by the repositories, so MockTxManager can roll back.
// =============================

type memStore struct {
	mu          sync.Mutex
	subs        map[string]model.Subscription
	txns        map[string]model.PaymentTransaction
	licenses    []model.License
	promos      map[string]model.PromoCode
	redemptions map[string]model.Redemption // key: user|promo
	nextLicense int64
	reconciled  map[string]time.Time // not rolled back by MockTxManager
}

func newMemStore() *memStore {
	return &memStore{
		subs:        map[string]model.Subscription{},
		txns:        map[string]model.PaymentTransaction{},
		promos:      map[string]model.PromoCode{},
		redemptions: map[string]model.Redemption{},
		reconciled:  map[string]time.Time{},
	}
}

type memSnapshot struct {
	subs        map[string]model.Subscription
	txns        map[string]model.PaymentTransaction
	licenses    []model.License
	promos      map[string]model.PromoCode
	redemptions map[string]model.Redemption
	nextLicense int64
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		subs:        make(map[string]model.Subscription, len(s.subs)),
		txns:        make(map[string]model.PaymentTransaction, len(s.txns)),
		licenses:    append([]model.License(nil), s.licenses...),
		promos:      make(map[string]model.PromoCode, len(s.promos)),
		redemptions: make(map[string]model.Redemption, len(s.redemptions)),
		nextLicense: s.nextLicense,
	}
	for k, v := range s.subs {
		snap.subs[k] = v
	}
	for k, v := range s.txns {
		snap.txns[k] = v
	}
	for k, v := range s.promos {
		snap.promos[k] = v
	}
	for k, v := range s.redemptions {
		snap.redemptions[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs, s.txns, s.licenses = snap.subs, snap.txns, snap.licenses
	s.promos, s.redemptions, s.nextLicense = snap.promos, snap.redemptions, snap.nextLicense
}

// reconcileBefore orders never-reconciled ids first, then by oldest stamp, then by creation.
// Callers hold s.mu.
func (s *memStore) reconcileBefore(idA string, createdA time.Time, idB string, createdB time.Time) bool {
	a, aok := s.reconciled[idA]
	b, bok := s.reconciled[idB]
	switch {
	case aok != bok:
		return !aok
	case aok && !a.Equal(b):
		return a.Before(b)
	}
	return createdA.Before(createdB)
}

func (s *memStore) reconciledAt(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.reconciled[id]
	return at, ok
}

func (s *memStore) licensesFor(userID string) []model.License {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.License
	for _, l := range s.licenses {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out
}

func (s *memStore) licenseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.licenses)
}

func (s *memStore) sub(id string) model.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[id]
}

func (s *memStore) txn(id string) model.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txns[id]
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	mu         sync.Mutex
	store      *memStore
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
	Calls      int
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager(store *memStore) *MockTxManager {
	return &MockTxManager{store: store}
}

// WithTx runs fn and restores the store when fn fails, like a rolled back transaction.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	if m.store == nil {
		return fn(ctx, repository.NoTX)
	}
	snap := m.store.snapshot()
	if err := fn(ctx, "mock-tx"); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	store *memStore

	FindByIDFunc          func(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error)
	ActivateIfPendingFunc func(ctx context.Context, tx repository.Tx, id string, a model.Activation) (bool, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo(store *memStore) *MockSubscriptionRepo {
	return &MockSubscriptionRepo{store: store}
}

func (r *MockSubscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.subs[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.store.subs[s.ID] = *s
	return nil
}

func (r *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *MockSubscriptionRepo) ActivateIfPending(ctx context.Context, tx repository.Tx, id string, a model.Activation) (bool, error) {
	if r.ActivateIfPendingFunc != nil {
		return r.ActivateIfPendingFunc(ctx, tx, id, a)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.subs[id]
	if !ok || s.Status != model.SubscriptionStatusPendingPayment {
		return false, nil
	}
	start, end, ref := a.PeriodStart, a.PeriodEnd, a.PaymentRef
	s.Status = model.SubscriptionStatusActive
	s.CreditsPerMonth = a.Credits
	s.CreditsRemaining = a.Credits
	s.CurrentPeriodStart = &start
	s.CurrentPeriodEnd = &end
	s.ExternalPaymentRef = &ref
	s.UpdatedAt = a.PeriodStart
	r.store.subs[id] = s
	return true, nil
}

func (r *MockSubscriptionRepo) FailIfPending(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.subs[id]
	if !ok || s.Status != model.SubscriptionStatusPendingPayment {
		return false, nil
	}
	s.Status = model.SubscriptionStatusFailed
	r.store.subs[id] = s
	return true, nil
}

func (r *MockSubscriptionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Subscription, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.store.subs {
		if s.Status == model.SubscriptionStatusPendingPayment && s.CreatedAt.Before(olderThan) {
			cp := s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.store.reconcileBefore(out[i].ID, out[i].CreatedAt, out[j].ID, out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockSubscriptionRepo) MarkReconciled(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.subs[id]; ok {
		r.store.reconciled[id] = at
	}
	return nil
}

func (r *MockSubscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.store.subs {
		if s.UserID == userID {
			cp := s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Mock PaymentTransactionRepository ----

type MockPaymentTxRepo struct {
	store *memStore

	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.PaymentTransaction, error)
}

var _ repository.PaymentTransactionRepository = (*MockPaymentTxRepo)(nil)

func NewMockPaymentTxRepo(store *memStore) *MockPaymentTxRepo {
	return &MockPaymentTxRepo{store: store}
}

func (r *MockPaymentTxRepo) Create(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.txns[t.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.store.txns[t.ID] = *t
	return nil
}

func (r *MockPaymentTxRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentTransaction, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.txns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (r *MockPaymentTxRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, paymentID *string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.txns[id]
	if !ok || t.Status != model.PaymentStatusPending {
		return false, nil
	}
	t.Status = status
	if paymentID != nil {
		pid := *paymentID
		t.PaymentID = &pid
	}
	r.store.txns[id] = t
	return true, nil
}

func (r *MockPaymentTxRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*model.PaymentTransaction
	for _, t := range r.store.txns {
		if t.Status == model.PaymentStatusPending && t.CreatedAt.Before(olderThan) {
			cp := t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.store.reconcileBefore(out[i].ID, out[i].CreatedAt, out[j].ID, out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockPaymentTxRepo) MarkReconciled(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.txns[id]; ok {
		r.store.reconciled[id] = at
	}
	return nil
}

// ---- Mock LicenseRepository ----

type MockLicenseRepo struct {
	store *memStore

	InsertFunc func(ctx context.Context, tx repository.Tx, l *model.License) error
}

var _ repository.LicenseRepository = (*MockLicenseRepo)(nil)

func NewMockLicenseRepo(store *memStore) *MockLicenseRepo {
	return &MockLicenseRepo{store: store}
}

func (r *MockLicenseRepo) Insert(ctx context.Context, tx repository.Tx, l *model.License) error {
	if r.InsertFunc != nil {
		if err := r.InsertFunc(ctx, tx, l); err != nil {
			return err
		}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.licenses {
		if existing.Key == l.Key {
			return domain.ErrAlreadyExists
		}
	}
	r.store.nextLicense++
	l.ID = r.store.nextLicense
	r.store.licenses = append(r.store.licenses, *l)
	return nil
}

func (r *MockLicenseRepo) LatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.License, error) {
	ls := r.store.licensesFor(userID)
	if len(ls) == 0 {
		return nil, domain.ErrNotFound
	}
	latest := ls[len(ls)-1]
	return &latest, nil
}

func (r *MockLicenseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.License, error) {
	ls := r.store.licensesFor(userID)
	out := make([]*model.License, 0, len(ls))
	for i := len(ls) - 1; i >= 0; i-- {
		l := ls[i]
		out = append(out, &l)
	}
	return out, nil
}

func (r *MockLicenseRepo) CountByOrder(ctx context.Context, tx repository.Tx, orderID string) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n := 0
	for _, l := range r.store.licenses {
		if l.OrderID != nil && *l.OrderID == orderID {
			n++
		}
	}
	return n, nil
}

// ---- Mock PromoCodeRepository ----

type MockPromoRepo struct {
	store *memStore

	HasRedeemedFunc func(ctx context.Context, tx repository.Tx, userID, promoID string) (bool, error)
}

var _ repository.PromoCodeRepository = (*MockPromoRepo)(nil)

func NewMockPromoRepo(store *memStore) *MockPromoRepo {
	return &MockPromoRepo{store: store}
}

func (r *MockPromoRepo) Save(ctx context.Context, tx repository.Tx, p *model.PromoCode) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.promos[p.Code] = *p
	return nil
}

func (r *MockPromoRepo) FindActiveByCode(ctx context.Context, tx repository.Tx, code string) (*model.PromoCode, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.promos[code]
	if !ok || !p.IsActive {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *MockPromoRepo) HasRedeemed(ctx context.Context, tx repository.Tx, userID, promoID string) (bool, error) {
	if r.HasRedeemedFunc != nil {
		return r.HasRedeemedFunc(ctx, tx, userID, promoID)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, ok := r.store.redemptions[userID+"|"+promoID]
	return ok, nil
}

func (r *MockPromoRepo) InsertRedemption(ctx context.Context, tx repository.Tx, red *model.Redemption) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	k := red.UserID + "|" + red.PromoCodeID
	if _, ok := r.store.redemptions[k]; ok {
		return domain.ErrAlreadyExists
	}
	r.store.redemptions[k] = *red
	return nil
}

// =============================
// Adapters
// =============================

type MockGateway struct {
	mu sync.Mutex

	NotConfigured   bool
	CreateOrderFunc func(ctx context.Context, req adapter.OrderRequest) (adapter.OrderSession, error)
	GetOrderFunc    func(ctx context.Context, orderID string) (adapter.OrderInfo, error)

	Requests []adapter.OrderRequest
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (g *MockGateway) Name() string     { return "mock" }
func (g *MockGateway) Configured() bool { return !g.NotConfigured }

func (g *MockGateway) CreateOrder(ctx context.Context, req adapter.OrderRequest) (adapter.OrderSession, error) {
	g.mu.Lock()
	g.Requests = append(g.Requests, req)
	g.mu.Unlock()
	if g.CreateOrderFunc != nil {
		return g.CreateOrderFunc(ctx, req)
	}
	return adapter.OrderSession{
		OrderID:         req.OrderID,
		ExternalOrderID: "cf_" + req.OrderID,
		PaymentLink:     "https://payments.example.test/pay/" + req.OrderID,
		SessionID:       "session_" + req.OrderID,
	}, nil
}

func (g *MockGateway) GetOrder(ctx context.Context, orderID string) (adapter.OrderInfo, error) {
	if g.GetOrderFunc != nil {
		return g.GetOrderFunc(ctx, orderID)
	}
	return adapter.OrderInfo{OrderID: orderID, OrderStatus: "ACTIVE"}, nil
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	n     int
	ErrOn map[string]error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.ErrOn[key]; ok {
		return "", err
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockBusy
	}
	l.n++
	tok := fmt.Sprintf("tok-%d", l.n)
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func (l *MockLocker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = "someone-else"
}

func (l *MockLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

// ---- Mock RateLimiter ----

type MockRateLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	Err    error
}

var _ adapter.RateLimiter = (*MockRateLimiter)(nil)

func (r *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.Err != nil {
		return false, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[key]++
	return r.counts[key] <= limit, nil
}

// ---- Recording EventPublisher ----

type MockPublisher struct {
	mu     sync.Mutex
	Events []adapter.BillingEvent
	Err    error
}

var _ adapter.EventPublisher = (*MockPublisher)(nil)

func (p *MockPublisher) Publish(ctx context.Context, ev adapter.BillingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, ev)
	return p.Err
}

func (p *MockPublisher) Close() error { return nil }

func (p *MockPublisher) Types() []adapter.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]adapter.EventType, 0, len(p.Events))
	for _, e := range p.Events {
		out = append(out, e.Type)
	}
	return out
}

// sequenceKeys returns a KeyGenerator yielding keys in order, then repeating the last one.
func sequenceKeys(keys ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		k := keys[i]
		if i < len(keys)-1 {
			i++
		}
		return k, nil
	}
}
