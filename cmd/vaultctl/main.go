// Command vaultctl inspects the vault key store. It prints public vault
// addresses and cross-checks them against the markets table. Secret key
// material is never printed.
//
// Usage:
//
//	vaultctl [-config path] address -market <id>
//	vaultctl [-config path] list
//	vaultctl [-config path] verify
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/alanyoungcy/boldengine/internal/app"
	"github.com/alanyoungcy/boldengine/internal/config"
	"github.com/alanyoungcy/boldengine/internal/crypto"
	"github.com/alanyoungcy/boldengine/internal/domain"
	"github.com/alanyoungcy/boldengine/internal/store/postgres"
	"github.com/alanyoungcy/boldengine/internal/vault"
)

var errMismatch = errors.New("vault addresses do not match the markets table")

func main() {
	configPath := flag.String("config", "", "path to configuration file (optional)")
	flag.Usage = usage
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vaultctl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenVaultStore(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vaultctl: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "address":
		err = runAddress(ctx, store, args, os.Stdout)
	case "list":
		err = runList(ctx, store, os.Stdout)
	case "verify":
		err = runVerify(ctx, cfg, store, os.Stdout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "vaultctl %s: %v\n", cmd, err)
		stop()
		closeStore()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vaultctl [-config path] <address -market id | list | verify>")
	flag.PrintDefaults()
}

func runAddress(ctx context.Context, store *vault.Store, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	marketID := fs.String("market", "", "market id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *marketID == "" {
		return errors.New("-market is required")
	}

	secret, err := store.Get(ctx, *marketID)
	if err != nil {
		return err
	}
	addr, err := crypto.AddressFromSecret(secret)
	if err != nil {
		return fmt.Errorf("market %s: %w", *marketID, err)
	}
	_, err = fmt.Fprintln(out, addr)
	return err
}

func runList(ctx context.Context, store *vault.Store, out io.Writer) error {
	ids, err := store.MarketIDs(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MARKET\tADDRESS")
	for _, id := range ids {
		secret, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		addr, err := crypto.AddressFromSecret(secret)
		if err != nil {
			addr = "<invalid: " + err.Error() + ">"
		}
		fmt.Fprintf(tw, "%s\t%s\n", id, addr)
	}
	return tw.Flush()
}

// runVerify compares every stored key with the address the markets table
// published for it.
func runVerify(ctx context.Context, cfg *config.Config, store *vault.Store, out io.Writer) error {
	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Supabase.DSN,
		Host:     cfg.Supabase.Host,
		Port:     cfg.Supabase.Port,
		Database: cfg.Supabase.Database,
		User:     cfg.Supabase.User,
		Password: cfg.Supabase.Password,
		SSLMode:  cfg.Supabase.SSLMode,
		MaxConns: 2,
		AppName:  "vaultctl",
	})
	if err != nil {
		return err
	}
	defer pg.Close()

	return verifyKeys(ctx, store, postgres.NewMarketStore(pg.Pool()), out)
}

type keyLister interface {
	MarketIDs(ctx context.Context) ([]string, error)
	domain.VaultKeyStore
}

func verifyKeys(ctx context.Context, keys keyLister, markets domain.MarketStore, out io.Writer) error {
	ids, err := keys.MarketIDs(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MARKET\tSTATE\tDETAIL")

	bad := 0
	for _, id := range ids {
		state, detail := verifyOne(ctx, keys, markets, id)
		if state != "ok" {
			bad++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", id, state, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if bad > 0 {
		return fmt.Errorf("%w (%d of %d)", errMismatch, bad, len(ids))
	}
	return nil
}

func verifyOne(ctx context.Context, keys domain.VaultKeyStore, markets domain.MarketStore, id string) (string, string) {
	secret, err := keys.Get(ctx, id)
	if err != nil {
		return "error", err.Error()
	}
	addr, err := crypto.AddressFromSecret(secret)
	if err != nil {
		return "invalid_key", err.Error()
	}

	m, err := markets.GetByID(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "orphaned", "no such market"
	case err != nil:
		return "error", err.Error()
	case !m.HasVault():
		return "unpublished", addr
	case *m.VaultAddress != addr:
		return "mismatch", fmt.Sprintf("stored %s, published %s", addr, *m.VaultAddress)
	default:
		return "ok", addr
	}
}
