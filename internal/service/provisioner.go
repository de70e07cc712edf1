package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/boldengine/internal/crypto"
	"github.com/alanyoungcy/boldengine/internal/domain"
	"github.com/alanyoungcy/boldengine/internal/notify"
	"golang.org/x/sync/errgroup"
)

// Vault provisioning results, as counted in metrics.
const (
	VaultCreated = "created"
	VaultReused  = "reused"
	VaultRaced   = "raced"
	VaultFailed  = "failed"
)

// ProvisionerConfig tunes a Provisioner.
type ProvisionerConfig struct {
	// Concurrency bounds how many markets are provisioned at once.
	Concurrency int
	// ReuseExistingKeys makes a retried market keep the key a previous,
	// interrupted attempt already stored. When false a fresh key replaces
	// it and the old one is orphaned.
	ReuseExistingKeys bool
}

// Provisioner gives every new market its own vault keypair. The secret is
// stored before the address is published, so the record store never names an
// address whose key was not persisted.
type Provisioner struct {
	markets  domain.MarketStore
	keys     domain.VaultKeyStore
	hooks    Hooks
	cfg      ProvisionerConfig
	generate func() (*crypto.VaultKeypair, error)
	logger   *slog.Logger
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(
	markets domain.MarketStore,
	keys domain.VaultKeyStore,
	hooks Hooks,
	cfg ProvisionerConfig,
	logger *slog.Logger,
) *Provisioner {
	cfg.Concurrency = concurrencyOrDefault(cfg.Concurrency)
	return &Provisioner{
		markets:  markets,
		keys:     keys,
		hooks:    hooks,
		cfg:      cfg,
		generate: crypto.GenerateVaultKeypair,
		logger:   logger.With(slog.String("component", "provisioner")),
	}
}

// ProvisionPass provisions every market that has no vault yet. Only a failure
// to list markets is returned; per-market failures are logged and the market
// is left for the next pass.
func (p *Provisioner) ProvisionPass(ctx context.Context) error {
	markets, err := p.markets.ListUnprovisioned(ctx)
	if err != nil {
		return fmt.Errorf("provisioner: list unprovisioned markets: %w", err)
	}
	if len(markets) == 0 {
		return nil
	}

	start := time.Now()
	var done, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for _, m := range markets {
		if ctx.Err() != nil {
			break
		}
		if m.VaultCreated {
			continue
		}
		g.Go(func() error {
			if err := p.provisionMarket(ctx, m); err != nil {
				failed.Add(1)
				if ctx.Err() != nil {
					p.logger.InfoContext(ctx, "provisioning abandoned at shutdown",
						slog.String("market_id", m.ID),
					)
					return nil
				}
				p.reportFailure(ctx, m.ID, err)
				return nil
			}
			done.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	p.logger.InfoContext(ctx, "provision pass finished",
		slog.Int("markets", len(markets)),
		slog.Int64("provisioned", done.Load()),
		slog.Int64("failed", failed.Load()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (p *Provisioner) provisionMarket(ctx context.Context, m domain.Market) error {
	kp, reused, err := p.keypairFor(ctx, m.ID)
	if err != nil {
		return err
	}

	if !reused {
		if err := p.keys.Save(ctx, m.ID, kp.Secret()); err != nil {
			return fmt.Errorf("persist key: %w", err)
		}
	}

	address := kp.Address()
	if err := p.markets.SetVault(ctx, m.ID, address); err != nil {
		if errors.Is(err, domain.ErrAlreadyProvisioned) {
			p.handleRace(ctx, m.ID, address)
			return nil
		}
		return fmt.Errorf("publish vault address: %w", err)
	}

	result := VaultCreated
	if reused {
		result = VaultReused
	}
	p.hooks.Metrics.VaultResult(result)
	p.logger.InfoContext(ctx, "vault provisioned",
		slog.String("market_id", m.ID),
		slog.String("vault_address", address),
		slog.Bool("reused_key", reused),
	)
	p.hooks.audit(ctx, p.logger, domain.ChannelVaultProvisioned, map[string]any{
		"market_id":     m.ID,
		"vault_address": address,
		"reused_key":    reused,
	})
	p.hooks.publish(ctx, p.logger, domain.ChannelVaultProvisioned, map[string]any{
		"market_id":     m.ID,
		"vault_address": address,
	})
	return nil
}

// keypairFor returns the keypair to publish for marketID and whether it was
// already in the key store.
func (p *Provisioner) keypairFor(ctx context.Context, marketID string) (*crypto.VaultKeypair, bool, error) {
	secret, err := p.keys.Get(ctx, marketID)
	switch {
	case err == nil:
		if p.cfg.ReuseExistingKeys {
			kp, err := crypto.VaultKeypairFromSecret(secret)
			if err != nil {
				// Never overwrite a key we cannot read; an operator decides.
				return nil, false, fmt.Errorf("stored key is unusable: %w", err)
			}
			return kp, true, nil
		}
		orphan, aerr := crypto.AddressFromSecret(secret)
		if aerr != nil {
			orphan = "unreadable"
		}
		p.logger.WarnContext(ctx, "replacing stored vault key for unprovisioned market",
			slog.String("market_id", marketID),
			slog.String("orphaned_address", orphan),
		)
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, false, fmt.Errorf("read stored key: %w", err)
	}

	kp, err := p.generate()
	if err != nil {
		return nil, false, fmt.Errorf("generate keypair: %w", err)
	}
	return kp, false, nil
}

// handleRace runs when another writer provisioned the market between our list
// and our update. The key store now holds our key, which may not be the one
// behind the published address.
func (p *Provisioner) handleRace(ctx context.Context, marketID, ours string) {
	p.hooks.Metrics.VaultResult(VaultRaced)

	m, err := p.markets.GetByID(ctx, marketID)
	if err != nil || m.VaultAddress == nil {
		p.logger.WarnContext(ctx, "market provisioned concurrently",
			slog.String("market_id", marketID),
		)
		return
	}
	if *m.VaultAddress == ours {
		return
	}

	msg := fmt.Sprintf("market %s was provisioned by another writer with %s; the stored key belongs to %s",
		marketID, *m.VaultAddress, ours)
	p.logger.ErrorContext(ctx, "vault key store disagrees with published address",
		slog.String("market_id", marketID),
		slog.String("published_address", *m.VaultAddress),
		slog.String("stored_address", ours),
	)
	p.hooks.alert(ctx, p.logger, notify.EventVaultFailed, "Vault key mismatch", msg)
}

func (p *Provisioner) reportFailure(ctx context.Context, marketID string, err error) {
	p.hooks.Metrics.VaultResult(VaultFailed)
	p.logger.ErrorContext(ctx, "vault provisioning failed",
		slog.String("market_id", marketID),
		slog.String("error", err.Error()),
	)
	p.hooks.audit(ctx, p.logger, notify.EventVaultFailed, map[string]any{
		"market_id": marketID,
		"error":     err.Error(),
	})
	p.hooks.alert(ctx, p.logger, notify.EventVaultFailed, "Vault provisioning failed",
		fmt.Sprintf("market %s: %v (will retry next pass)", marketID, err))
}
