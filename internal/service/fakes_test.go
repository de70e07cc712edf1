package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/boldengine/internal/domain"
	"github.com/shopspring/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

// memRecords is an in-memory record store implementing MarketStore and
// BetStore with the same conditional-update semantics as the SQL store.
type memRecords struct {
	mu      sync.Mutex
	markets map[string]domain.Market
	bets    map[string]domain.Bet

	listErr    error
	setVaultFn func(marketID, address string) error
	confirmErr error
	setVaults  int
}

func newMemRecords() *memRecords {
	return &memRecords{
		markets: make(map[string]domain.Market),
		bets:    make(map[string]domain.Bet),
	}
}

func (s *memRecords) addMarket(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[id] = domain.Market{ID: id}
}

func (s *memRecords) addBet(b domain.Bet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Status == "" {
		b.Status = domain.BetPending
	}
	s.bets[b.ID] = b
}

func (s *memRecords) market(id string) domain.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markets[id]
}

func (s *memRecords) bet(id string) domain.Bet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bets[id]
}

func (s *memRecords) ListUnprovisioned(context.Context) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Market
	for _, m := range s.markets {
		if !m.VaultCreated {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memRecords) SetVault(_ context.Context, marketID, address string) error {
	if s.setVaultFn != nil {
		if err := s.setVaultFn(marketID, address); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.VaultCreated {
		return domain.ErrAlreadyProvisioned
	}
	m.VaultCreated = true
	m.VaultAddress = strPtr(address)
	s.markets[marketID] = m
	s.setVaults++
	return nil
}

func (s *memRecords) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memRecords) ListPending(context.Context) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Bet
	for _, b := range s.bets {
		if b.Status == domain.BetPending {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memRecords) Confirm(_ context.Context, bet domain.Bet) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmErr != nil {
		return domain.Market{}, s.confirmErr
	}
	stored, ok := s.bets[bet.ID]
	if !ok || stored.Status != domain.BetPending {
		return domain.Market{}, domain.ErrNotPending
	}
	m, ok := s.markets[stored.MarketID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	stored.Status = domain.BetConfirmed
	s.bets[bet.ID] = stored
	if stored.Outcome {
		m.PoolYes = m.PoolYes.Add(stored.Amount)
	} else {
		m.PoolNo = m.PoolNo.Add(stored.Amount)
	}
	m.TotalVolume = m.TotalVolume.Add(stored.Amount)
	s.markets[m.ID] = m
	return m, nil
}

func (s *memRecords) MarkFailed(_ context.Context, betID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[betID]
	if !ok || b.Status != domain.BetPending {
		return domain.ErrNotPending
	}
	b.Status = domain.BetFailed
	s.bets[betID] = b
	return nil
}

// memKeys is an in-memory VaultKeyStore.
type memKeys struct {
	mu      sync.Mutex
	secrets map[string][]byte
	saveErr error
	getErr  error
	saves   int
}

func newMemKeys() *memKeys {
	return &memKeys{secrets: make(map[string][]byte)}
}

func (k *memKeys) Save(_ context.Context, marketID string, secret []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.saveErr != nil {
		return k.saveErr
	}
	k.secrets[marketID] = append([]byte(nil), secret...)
	k.saves++
	return nil
}

func (k *memKeys) Get(_ context.Context, marketID string) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.getErr != nil {
		return nil, k.getErr
	}
	s, ok := k.secrets[marketID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), s...), nil
}

func (k *memKeys) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.secrets)
}

// fakeLedger answers lookups from a table keyed by transaction reference.
// Unknown references are not found.
type fakeLedger struct {
	mu      sync.Mutex
	results map[string]domain.LedgerResult
	errs    map[string]error
	calls   map[string]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		results: make(map[string]domain.LedgerResult),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (l *fakeLedger) Lookup(_ context.Context, ref string) (domain.LedgerResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[ref]++
	if err, ok := l.errs[ref]; ok {
		return domain.LedgerResult{}, err
	}
	return l.results[ref], nil
}

func (l *fakeLedger) callCount(ref string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[ref]
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditEntry(nil), a.entries...), nil
}

func (a *memAudit) events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Event)
	}
	return out
}

type memEvents struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
}

func (e *memEvents) Publish(_ context.Context, channel string, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.channels = append(e.channels, channel)
	e.payloads = append(e.payloads, payload)
	return nil
}

type recAlerts struct {
	mu     sync.Mutex
	events []string
}

func (r *recAlerts) Notify(_ context.Context, event, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recAlerts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

var errBoom = errors.New("boom")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
