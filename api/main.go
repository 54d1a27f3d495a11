package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const version = "1.0.0"

type config struct {
	port int
	env  string
	db   struct {
		driver             string
		dsn                string
		maxOpenConnections int
		maxIdleConnections int
		maxIdleTime        time.Duration
	}
	smtp smtpConfig
	jwt  struct {
		secret string
		ttl    time.Duration
	}
	bcryptCost          int
	allowRoleSelfAssign bool
	admin               struct {
		username string
		email    string
		password string
	}
	limiter struct {
		enabled             bool
		maxRequestPerSecond float64
		burst               int
	}
	login struct {
		maxFailures int
		window      time.Duration
	}
	cors struct {
		trustedOrigins []string
	}
}

type application struct {
	config   config
	auth     *authService
	todos    *todoRepository
	notifier notifier
	throttle *loginThrottle
	wg       sync.WaitGroup
}

func newApplication(cfg config, s store, n notifier) *application {
	if n == nil {
		n = nopNotifier{}
	}
	return &application{
		config: cfg,
		auth: &authService{
			store:               s,
			secret:              []byte(cfg.jwt.secret),
			tokenTTL:            cfg.jwt.ttl,
			bcryptCost:          cfg.bcryptCost,
			allowRoleSelfAssign: cfg.allowRoleSelfAssign,
		},
		todos:    &todoRepository{store: s},
		notifier: n,
		throttle: newLoginThrottle(cfg.login.maxFailures, cfg.login.window),
	}
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	var cfg config
	flag.IntVar(&cfg.port, "port", envInt("PORT", 8000), "Server Port")
	flag.StringVar(&cfg.env, "env", "development", "Environment [development|production]")

	flag.StringVar(&cfg.db.driver, "db-driver", envOr("DB_DRIVER", "postgres"), "Database driver [postgres|sqlite3]")
	flag.StringVar(&cfg.db.dsn, "db-dsn", os.Getenv("DB_DSN"), "Database DSN, empty keeps data in memory")
	flag.IntVar(&cfg.db.maxOpenConnections, "db-max-open-conns", 25, "PostgreSQL max open connections")
	flag.IntVar(&cfg.db.maxIdleConnections, "db-max-idle-conns", 25, "PostgreSQL max idle connections")
	flag.DurationVar(&cfg.db.maxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max connection idle time")

	flag.StringVar(&cfg.smtp.host, "smtp-host", os.Getenv("SMTP_HOST"), "SMTP host, empty disables email")
	flag.IntVar(&cfg.smtp.port, "smtp-port", envInt("SMTP_PORT", 25), "SMTP port")
	flag.StringVar(&cfg.smtp.username, "smtp-username", os.Getenv("SMTP_USERNAME"), "SMTP username")
	flag.StringVar(&cfg.smtp.password, "smtp-password", os.Getenv("SMTP_PASSWORD"), "SMTP password")
	flag.StringVar(&cfg.smtp.sender, "smtp-sender", os.Getenv("SMTP_SENDER"), "SMTP sender")

	flag.StringVar(&cfg.jwt.secret, "jwt-secret", os.Getenv("JWT_SECRET"), "JWT secret")
	flag.DurationVar(&cfg.jwt.ttl, "jwt-ttl", 0, "Token lifetime, 0 issues tokens that never expire")
	flag.IntVar(&cfg.bcryptCost, "bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost for password hashes")
	flag.BoolVar(&cfg.allowRoleSelfAssign, "allow-role-self-assign", true, "Let registrations request the admin role")

	flag.StringVar(&cfg.admin.username, "admin-username", envOr("ADMIN_USERNAME", "admin"), "Seeded admin username")
	flag.StringVar(&cfg.admin.email, "admin-email", os.Getenv("ADMIN_EMAIL"), "Seeded admin email, empty disables seeding")
	flag.StringVar(&cfg.admin.password, "admin-password", os.Getenv("ADMIN_PASSWORD"), "Seeded admin password")

	flag.BoolVar(&cfg.limiter.enabled, "limiter-enabled", false, "Enable per-IP rate limiting")
	flag.Float64Var(&cfg.limiter.maxRequestPerSecond, "limiter-rps", 4, "Rate limiter maximum requests per second")
	flag.IntVar(&cfg.limiter.burst, "limiter-burst", 8, "Rate limiter maximum burst")

	flag.IntVar(&cfg.login.maxFailures, "login-max-failures", 5, "Failed logins per IP before login is refused, 0 disables")
	flag.DurationVar(&cfg.login.window, "login-window", 15*time.Minute, "How long failed logins are remembered")

	flag.Func("cors-trusted-origins", "Trusted CORS origins (space separated)", func(val string) error {
		cfg.cors.trustedOrigins = strings.Fields(val)
		return nil
	})
	flag.Parse()

	if cfg.jwt.secret == "" {
		log.Println("no JWT secret configured, generating a random one; tokens will not survive a restart")
		secret := make([]byte, 32)
		_, err := rand.Read(secret)
		if err != nil {
			log.Fatal(err)
		}
		cfg.jwt.secret = string(secret)
	}
	if cfg.allowRoleSelfAssign {
		log.Println("registrations may self-assign the admin role")
	}

	var s store
	if cfg.db.dsn == "" {
		log.Println("no database DSN configured, keeping data in memory")
		s = newMemoryStore()
	} else {
		db, err := openDB(cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		log.Printf("established a connection with %s database", cfg.db.driver)
		s = newSQLStore(db)
	}

	var n notifier = nopNotifier{}
	if cfg.smtp.host != "" {
		m, err := newMailer(cfg.smtp)
		if err != nil {
			log.Fatal(err)
		}
		n = m
	}

	app := newApplication(cfg, s, n)

	if cfg.admin.email != "" {
		created, err := app.auth.seedAdmin(context.Background(), cfg.admin.username, cfg.admin.email, cfg.admin.password)
		if err != nil {
			log.Fatalf("seed admin: %v", err)
		}
		if created {
			log.Printf("seeded admin account %s", normalizeEmail(cfg.admin.email))
		}
	}

	err := app.serve()
	if err != nil {
		log.Fatal(err)
	}
}

func (app *application) serve() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.config.port),
		Handler:      composeRoutes(app),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	shutdownErr := make(chan error)
	go func() {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		log.Println("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		err := srv.Shutdown(ctx)
		app.wg.Wait()
		shutdownErr <- err
	}()

	log.Printf("Starting %s server on port %d\n", app.config.env, app.config.port)
	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	err = <-shutdownErr
	if err != nil {
		return err
	}
	log.Println("stopped server")
	return nil
}

// background runs fn outside the request and logs a panic instead of
// crashing the process.
func (app *application) background(fn func()) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		defer func() {
			if err := recover(); err != nil {
				log.Printf("background task panicked: %v", err)
			}
		}()
		fn()
	}()
}
