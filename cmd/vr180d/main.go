// Command vr180d serves the conversion job queue over HTTP.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/browser"
	_ "modernc.org/sqlite"

	"github.com/stevecastle/vr180/appconfig"
	"github.com/stevecastle/vr180/auth"
	"github.com/stevecastle/vr180/deps"
	"github.com/stevecastle/vr180/jobqueue"
	"github.com/stevecastle/vr180/publish"
	"github.com/stevecastle/vr180/runners"
	"github.com/stevecastle/vr180/server"
	"github.com/stevecastle/vr180/stream"
	"github.com/stevecastle/vr180/tasks"
)

func main() {
	addr := flag.String("addr", "", "listen address (overrides config)")
	open := flag.Bool("open", false, "open the health page in a browser once listening")
	flag.Parse()

	if err := appconfig.LoadEnv(".env"); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg, path, err := appconfig.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg, err = appconfig.ApplyEnv(cfg, os.LookupEnv); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	appconfig.Set(cfg)
	log.Printf("Using config %s", path)

	db, err := initDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if cfg.FFmpegPath != "" {
		deps.SetPath("ffmpeg", cfg.FFmpegPath)
	}
	if cfg.FFprobePath != "" {
		deps.SetPath("ffprobe", cfg.FFprobePath)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	for _, st := range deps.CheckAll(ctx) {
		if st.Installed {
			log.Printf("%s %s at %s", st.Name, st.Version, st.Path)
		} else {
			log.Printf("warning: %s unavailable: %s", st.Name, st.Error)
		}
	}
	cancel()

	var pub publish.Publisher
	if cfg.S3.Enabled() {
		s3pub, err := publish.NewS3(context.Background(), cfg.S3)
		if err != nil {
			log.Fatalf("Failed to configure S3 publishing: %v", err)
		}
		pub = s3pub
		log.Printf("Publishing finished videos to s3://%s/%s", cfg.S3.Bucket, cfg.S3.Prefix)
	}
	tasks.Configure(tasks.FromConfig(cfg, pub))

	var authSvc *auth.Service
	if cfg.AuthEnabled() {
		if authSvc, err = auth.NewService(db, cfg.JWTSecret); err != nil {
			log.Fatalf("Failed to initialize auth: %v", err)
		}
		envPw := os.Getenv(appconfig.EnvPrefix + "ADMIN_PASSWORD")
		pw, err := authSvc.EnsureAdmin(envPw)
		if err != nil {
			log.Fatalf("Failed to create admin user: %v", err)
		}
		switch {
		case pw != "" && envPw == "":
			log.Printf("Created user admin with password %s", pw)
		case pw != "":
			log.Println("Created user admin")
		}
		log.Println("API authentication enabled")
	}

	log.Println("Initializing job queue with database persistence...")
	queue := jobqueue.NewQueueWithDB(db)
	queue.SetLimit(cfg.JobConcurrency)
	log.Printf("Job queue initialized. Current jobs: %d", len(queue.GetJobs()))
	r := runners.New(queue)
	r.CheckForJobs()

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: server.New(&server.Dependencies{
			Queue:    queue,
			Hub:      stream.Default(),
			Settings: cfg.VR180,
			Auth:     authSvc,
		}),
	}
	go func() {
		log.Printf("Listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("vr180d: %v", err)
		}
	}()
	if *open {
		_ = browser.OpenURL(fmt.Sprintf("http://%s/api/health", cfg.ListenAddr))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	shutdown(srv, r, queue)
}

func initDB(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}
	log.Printf("Connected to SQLite database at: %s", dbPath)
	return db, nil
}

// shutdown stops the runners and persists the queue before closing the HTTP
// server. Interrupted conversions restart from scratch on the next start.
func shutdown(srv *http.Server, r *runners.Runners, queue *jobqueue.Queue) {
	log.Println("Shutting down vr180d...")

	r.Shutdown()
	log.Println("Job runners shut down")

	stream.Shutdown()

	if err := queue.SaveAllJobsToDB(); err != nil {
		log.Printf("Error saving jobs to database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("vr180d shutdown complete")
}
