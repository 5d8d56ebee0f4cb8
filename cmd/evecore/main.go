// Command evecore runs the account-management backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/evecore/evecore/internal/account"
	"github.com/evecore/evecore/internal/config"
	"github.com/evecore/evecore/internal/domain"
	"github.com/evecore/evecore/internal/groups"
	httpx "github.com/evecore/evecore/internal/http"
	"github.com/evecore/evecore/internal/http/controllers/auth"
	"github.com/evecore/evecore/internal/http/controllers/health"
	"github.com/evecore/evecore/internal/login"
	"github.com/evecore/evecore/internal/mail"
	"github.com/evecore/evecore/internal/metrics"
	"github.com/evecore/evecore/internal/observability/logger"
	"github.com/evecore/evecore/internal/rate"
	"github.com/evecore/evecore/internal/session"
	sessionmem "github.com/evecore/evecore/internal/session/memory"
	sessionredis "github.com/evecore/evecore/internal/session/redis"
	"github.com/evecore/evecore/internal/sso"
	"github.com/evecore/evecore/internal/store/pg"
	migrations "github.com/evecore/evecore/migrations/postgres"
)

var version = "dev"

func main() {
	var cfgPath, envFile string

	root := &cobra.Command{
		Use:           "evecore",
		Short:         "EVE Online community account management backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional; real environments set variables directly
			_ = godotenv.Load(envFile)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to .env file")

	root.AddCommand(serveCmd(&cfgPath), migrateCmd(&cfgPath), seedCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		ServiceName: "evecore",
		Version:     version,
	})
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*pg.Store, error) {
	return pg.New(ctx, cfg.Storage.DSN, pg.Options{
		MaxConns: int32(cfg.Storage.Postgres.MaxConns),
	})
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := metrics.Register(nil); err != nil {
				return err
			}

			var backend session.Backend
			var limiter rate.Limiter
			switch cfg.Session.Backend {
			case "redis":
				backend = sessionredis.New(cfg.Session.Redis.Addr, cfg.Session.Redis.DB, cfg.Session.Redis.Prefix)
				limiter = rate.NewRedisLimiter(rdb.NewClient(&rdb.Options{
					Addr: cfg.Session.Redis.Addr,
					DB:   cfg.Session.Redis.DB,
				}), "evecore:rl:", 20, time.Minute)
			default:
				backend = sessionmem.New(cfg.SessionTTL())
				limiter = rate.NewMemoryLimiter(20, time.Minute)
			}
			sessions := session.NewManager(backend, session.ManagerConfig{
				CookieName: cfg.Session.CookieName,
				Domain:     cfg.Session.Domain,
				SameSite:   cfg.Session.SameSite,
				Secure:     cfg.Session.Secure,
				TTL:        cfg.SessionTTL(),
			})

			provider := sso.NewProvider(sso.Config{
				ClientID:     cfg.SSO.ClientID,
				ClientSecret: cfg.SSO.ClientSecret,
				CallbackURL:  cfg.SSO.CallbackURL,
				AuthorizeURL: cfg.SSO.AuthorizeURL,
				TokenURL:     cfg.SSO.TokenURL,
				JWKSURL:      cfg.SSO.JWKSURL,
				Issuer:       cfg.SSO.Issuer,
				Audience:     cfg.SSO.Audience,
			})
			esi := sso.NewESIClient(cfg.ESI.BaseURL, cfg.ESITimeout())

			registry := login.NewRegistry(cfg.SSO.Scopes, store.EveLogins(), store.Settings())
			tokens := account.NewTokenService(store, provider)

			var smtp *mail.SMTPSender
			if cfg.Mail.Host != "" {
				smtp = mail.NewSMTPSender(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.From, cfg.Mail.User, cfg.Mail.Pass)
			}
			notifier := mail.NewNotifier(mail.NotifierDeps{
				Store:      store,
				Tokens:     tokens,
				ESIBaseURL: cfg.ESI.BaseURL,
				SMTP:       smtp,
				AdminTo:    cfg.Mail.AdminTo,
			})

			newEngine := func(s domain.Store) *groups.Engine {
				return groups.NewEngine(s, cfg.Groups.SyncMaxPasses).WithNotifier(notifier)
			}

			resolver := account.NewResolver(account.ResolverDeps{
				Store:     store,
				Registry:  registry,
				SSO:       provider,
				Verifier:  provider,
				Roles:     esi,
				NewEngine: newEngine,
			})

			router := httpx.NewRouter(httpx.RouterDeps{
				Sessions:     sessions,
				LoginLimiter: limiter,
				CORSOrigins:  cfg.Server.CORSAllowedOrigins,
				Login:    auth.NewLoginController(registry, provider),
				Callback: auth.NewCallbackController(resolver),
				Session:  auth.NewSessionController(),
				Password: auth.NewPasswordController(store),
				Health:   health.NewController(store),
			})

			return httpx.NewServer(cfg.Server.Addr, router).Run(ctx)
		},
	}
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			names, err := fs.Glob(migrations.FS, "*.sql")
			if err != nil {
				return err
			}
			sort.Strings(names)
			for _, name := range names {
				b, err := migrations.FS.ReadFile(name)
				if err != nil {
					return err
				}
				if _, err := store.Pool().Exec(cmd.Context(), string(b)); err != nil {
					return fmt.Errorf("migrate %s: %w", name, err)
				}
				logger.L().Info("migration applied", logger.String("file", name))
			}
			return nil
		},
	}
}

func seedCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the baseline roles and settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			for _, name := range []string{domain.RoleUser, domain.RoleSettings} {
				err := store.Roles().Create(ctx, &domain.Role{Name: name})
				if err != nil && !errors.Is(err, domain.ErrDuplicate) {
					return err
				}
			}
			for name, value := range map[string]string{
				domain.SettingAllowLoginManaged:       "0",
				domain.SettingGroupsRequireValidToken: "0",
				domain.SettingDisableAltLogin:         "0",
			} {
				if err := store.Settings().Set(ctx, name, value); err != nil {
					return err
				}
			}
			logger.L().Info("seed completed")
			return nil
		},
	}
}
