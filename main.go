package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cfg "github.com/example/diyhub/internal/config"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type App struct {
	Store       Store
	Tokens      *TokenService
	UploadDir   string
	rateLimiter *RateLimiter
}

// Router builds the full route table. Mutating routes are wrapped in
// the gates they need: Authenticate for any principal, RequireRole for
// admin surfaces, ownership checks inside the handlers.
func (a *App) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(a.Logging)
	r.Use(Recover)
	r.Use(CORS)

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if p, ok := a.Store.(interface{ ping() bool }); ok && !p.ping() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
	}).Methods("GET")

	// Uploaded profile pictures are served straight off disk.
	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(a.UploadDir))))

	api := r.PathPrefix("/api").Subrouter()

	authed := func(h http.HandlerFunc) http.Handler { return a.Authenticate(h) }
	admin := func(h http.HandlerFunc) http.Handler {
		return a.Authenticate(RequireRole(RoleAdmin)(h))
	}

	// Credential endpoints, rate limited per client IP.
	api.Handle("/register", a.RateLimit(http.HandlerFunc(a.HandleRegister))).Methods("POST")
	api.Handle("/login", a.RateLimit(http.HandlerFunc(a.HandleLogin))).Methods("POST")

	// Profile
	api.Handle("/profile", authed(a.HandleGetProfile)).Methods("GET")
	api.Handle("/profile", authed(a.HandleUpdateProfile)).Methods("PUT")
	api.Handle("/upload-profile-pic", authed(a.HandleUploadProfilePic)).Methods("POST")
	api.Handle("/link-youtube-video", authed(a.HandleLinkYouTubeVideo)).Methods("POST")

	// Users
	api.HandleFunc("/users/{id}", a.HandleGetUser).Methods("GET")
	api.Handle("/users/{id}", authed(a.HandleUpdateUser)).Methods("PUT")

	// Projects
	api.HandleFunc("/projects", a.HandleListProjects).Methods("GET")
	api.Handle("/projects", authed(a.HandleCreateProject)).Methods("POST")
	api.HandleFunc("/projects/{id}", a.HandleGetProject).Methods("GET")
	api.Handle("/projects/{id}", authed(a.HandleUpdateProject)).Methods("PUT")
	api.Handle("/projects/{id}", authed(a.HandleDeleteProject)).Methods("DELETE")

	// Comments
	api.HandleFunc("/projects/{id}/comments", a.HandleListComments).Methods("GET")
	api.Handle("/projects/{id}/comments", authed(a.HandleCreateComment)).Methods("POST")
	api.Handle("/projects/{id}/comments/{commentID}", authed(a.HandleDeleteComment)).Methods("DELETE")

	// Likes
	api.Handle("/projects/{id}/like", authed(a.HandleLike)).Methods("POST")
	api.Handle("/projects/{id}/like", authed(a.HandleUnlike)).Methods("DELETE")

	// Admin
	api.Handle("/admin-dashboard", admin(a.HandleAdminDashboard)).Methods("GET")
	api.Handle("/admin/users/{id}/role", admin(a.HandleSetUserRole)).Methods("PUT")

	return r
}

func setupLogging(level, format string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logrus.SetLevel(lvl)
	}
	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

func main() {
	c, err := cfg.New()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	setupLogging(c.LogLevel, c.LogFormat)

	var store Store
	switch c.DBAdapter {
	case "sqlite":
		s, err := NewSQLiteStore(c.SQLiteFile)
		if err != nil {
			logrus.Fatalf("sqlite init: %v", err)
		}
		store = s
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			logrus.Fatalf("postgres config error: %v", err)
		}
		if err := ApplyMigrations("./migrations", dsn); err != nil {
			logrus.Fatalf("migrations: %v", err)
		}
		p, err := NewPostgresStore(dsn)
		if err != nil {
			logrus.Fatalf("postgres init: %v", err)
		}
		store = p
		logrus.Info("connected to PostgreSQL")
	case "memory":
		logrus.Warn("using in-memory store (not recommended for production)")
		store = NewMemStore()
	default:
		logrus.Fatalf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	app := &App{
		Store:       store,
		Tokens:      NewTokenService([]byte(c.JwtSecret), c.TokenTTL),
		UploadDir:   c.UploadDir,
		rateLimiter: NewRateLimiter(c.AuthRatePerMinute),
	}

	srv := &http.Server{
		Handler:      app.Router(),
		Addr:         ":" + c.Port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logrus.Infof("starting server on :%s", c.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := app.Store.(interface{ close() error }); ok {
		_ = closer.close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Fatalf("shutdown failed: %v", err)
	}
	logrus.Info("server exited properly")
}
