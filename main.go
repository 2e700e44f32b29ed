package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/example/userauth/internal/auth"
	cfg "github.com/example/userauth/internal/config"
	"github.com/example/userauth/internal/logging"
	"github.com/example/userauth/internal/password"
	"github.com/example/userauth/internal/store"
	"github.com/example/userauth/internal/token"
	"github.com/example/userauth/migrations"
)

type App struct {
	auth        *auth.Service
	store       store.Store
	log         *slog.Logger
	validate    *validator.Validate
	limiter     *RateLimiter
	corsOrigins []string
}

func NewApp(svc *auth.Service, st store.Store, log *slog.Logger, c *cfg.Config) *App {
	return &App{
		auth:        svc,
		store:       st,
		log:         log,
		validate:    newValidator(),
		limiter:     NewRateLimiter(c.RateLimitPerMinute),
		corsOrigins: c.CORSAllowedOrigins,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Handler builds the router with its middleware chain. The chain wraps the
// router so CORS preflights and unmatched routes are handled too.
func (a *App) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", a.HandleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", a.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", a.HandleReady).Methods(http.MethodGet)

	users := r.PathPrefix("/users").Subrouter()
	users.HandleFunc("/me", a.authenticated(a.HandleMe)).Methods(http.MethodGet)
	users.HandleFunc("/refresh", a.HandleRefresh).Methods(http.MethodPost)
	users.HandleFunc("/logout", a.HandleLogout).Methods(http.MethodPost)

	limited := users.NewRoute().Subrouter()
	limited.Use(a.RateLimit)
	limited.HandleFunc("/register", a.HandleRegister).Methods(http.MethodPost)
	limited.HandleFunc("/login", a.HandleLogin).Methods(http.MethodPost)
	limited.HandleFunc("/introspect", a.HandleTokenIntrospect).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	return SecurityHeaders(a.Logging(a.CORS(r)))
}

func openStore(ctx context.Context, c *cfg.Config, log *slog.Logger) (store.Store, error) {
	switch c.DBAdapter {
	case cfg.AdapterSQLite:
		s, err := store.NewSQLite(ctx, c.SQLiteFile)
		if err != nil {
			return nil, fmt.Errorf("sqlite init: %w", err)
		}
		log.Info("using sqlite database", slog.String("file", c.SQLiteFile))
		return s, nil
	case cfg.AdapterPostgres:
		log.Info("applying database migrations")
		if err := migrations.Apply(c.Postgres.DSN, c.MigrationsDir, log); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		p, err := store.NewPostgres(ctx, c.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres init: %w", err)
		}
		log.Info("connected to postgres database")
		return p, nil
	case cfg.AdapterMemory:
		log.Warn("using in-memory database (not recommended for production)")
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
}

func newAuthService(c *cfg.Config, st store.Store, log *slog.Logger) (*auth.Service, error) {
	tokens, err := token.New(token.Config{
		Secret:    []byte(c.SecretKey),
		Algorithm: c.Algorithm,
		Lifetime:  c.AccessTokenTTL(),
	})
	if err != nil {
		return nil, err
	}
	scheme, err := password.ParseScheme(c.Hashing.Scheme)
	if err != nil {
		return nil, err
	}
	hasher := password.New(password.WithScheme(scheme), password.WithCost(c.BcryptCost))
	return auth.NewService(st, hasher, tokens,
		auth.WithRefreshTTL(c.RefreshTokenTTL()),
		auth.WithLogger(log),
	)
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	c, err := cfg.New()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(os.Stdout, c.Env, c.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	slog.SetDefault(log)
	if c.SecretKey == cfg.DefaultSecret {
		log.Warn("SECRET_KEY is the built-in default; set it before deploying")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, c, log)
	if err != nil {
		return err
	}
	defer st.Close()

	svc, err := newAuthService(c, st, log)
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}

	app := NewApp(svc, st, log, c)
	go app.limiter.Run(ctx)

	srv := &http.Server{
		Handler:      app.Handler(),
		Addr:         ":" + c.Port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", slog.String("addr", srv.Addr), slog.String("env", c.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	log.Info("server exited properly")
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", logging.Err(err))
		os.Exit(1)
	}
}
