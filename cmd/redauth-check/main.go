// Command redauth-check inspects the stored account registry and reports the
// current session state from the command line.
//
// Configuration comes from flags, with a .env file (loaded when present)
// filling in defaults:
//
//	REDAUTH_STORE_PATH  — registry file path (default redauth_accounts.bin)
//	REDAUTH_PASSPHRASE  — registry encryption passphrase
//	REDIS_ADDR          — store the registry in Redis instead of a file
//
// Usage:
//
//	redauth-check                 # quick check of the active account
//	redauth-check -full           # run the full validation strategy chain
//	redauth-check -list           # list stored accounts (tokens redacted)
//	redauth-check -export out.json
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	redauth "github.com/redforge/redauth"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var (
		full       = flag.Bool("full", false, "run the full validation strategy chain instead of a quick check")
		list       = flag.Bool("list", false, "list stored accounts with redacted tokens")
		exportPath = flag.String("export", "", "write a redacted account export to this file")
		storePath  = flag.String("store", "", "registry file path; overrides REDAUTH_STORE_PATH")
		redisAddr  = flag.String("redis-addr", "", "redis address; overrides REDIS_ADDR")
		timeout    = flag.Duration("timeout", 30*time.Second, "overall deadline")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	// Missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	cfg := redauth.DefaultConfig()
	if path := firstNonEmpty(*storePath, os.Getenv("REDAUTH_STORE_PATH")); path != "" {
		cfg.Storage.FilePath = path
	}
	if pass := os.Getenv("REDAUTH_PASSPHRASE"); pass != "" {
		cfg.Storage.Passphrase = pass
	}
	// The monitor is pointless for a one-shot command.
	cfg.Monitor.Enabled = false

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
			os.Exit(1)
		}
	}
	defer func() { _ = logger.Sync() }()

	builder := redauth.New().
		WithConfig(cfg).
		WithLogger(logger)

	if addr := firstNonEmpty(*redisAddr, os.Getenv("REDIS_ADDR")); addr != "" {
		builder = builder.WithRedis(redis.NewClient(&redis.Options{Addr: addr}))
	}

	svc, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "service build: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch {
	case *list:
		if err := listAccounts(ctx, svc); err != nil {
			fmt.Fprintf(os.Stderr, "list: %v\n", err)
			os.Exit(1)
		}
	case *exportPath != "":
		if err := exportAccounts(ctx, svc, *exportPath); err != nil {
			fmt.Fprintf(os.Stderr, "export: %v\n", err)
			os.Exit(1)
		}
	default:
		if !checkSession(ctx, svc, *full) {
			os.Exit(1)
		}
	}
}

func checkSession(ctx context.Context, svc *redauth.Service, full bool) bool {
	active, err := svc.ActiveAccount(ctx)
	if err != nil {
		fmt.Println("no active account")
		return false
	}
	fmt.Printf("active account: %s (%s)\n", active.Nickname, active.Phone)

	if full {
		res := svc.CheckSession(ctx)
		fmt.Printf("full check: loggedIn=%v strategy=%s\n", res.LoggedIn, res.Strategy)
		return res.LoggedIn
	}
	res := svc.QuickCheck(ctx)
	fmt.Printf("quick check: loggedIn=%v strategy=%s fromCache=%v\n", res.LoggedIn, res.Strategy, res.FromCache)
	return res.LoggedIn
}

func listAccounts(ctx context.Context, svc *redauth.Service) error {
	accounts, err := svc.Accounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Println("no stored accounts")
		return nil
	}
	for _, a := range accounts {
		marker := " "
		if a.Active {
			marker = "*"
		}
		fmt.Printf("%s %s  %s  phone=%s  logins=%d  last=%s\n",
			marker, a.ID, a.Nickname, a.Phone, a.LoginCount, a.LastLoginAt.Format(time.RFC3339))
	}
	return nil
}

func exportAccounts(ctx context.Context, svc *redauth.Service, path string) error {
	data, err := svc.ExportAccounts(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
