// cmd/berrymon/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/rusenback/berrymon/internal/backend"
	"github.com/rusenback/berrymon/internal/config"
	"github.com/rusenback/berrymon/internal/console"
	"github.com/rusenback/berrymon/internal/feed"
	"github.com/rusenback/berrymon/internal/logging"
	"github.com/rusenback/berrymon/internal/overview"
	"github.com/rusenback/berrymon/internal/poll"
	"github.com/rusenback/berrymon/internal/storage"
	"github.com/rusenback/berrymon/internal/tui"
)

// tokenKey is where the dashboard bearer token is remembered
const tokenKey = "auth.token"

func main() {
	cfgPath := flag.String("config", "", "path to YAML config")
	baseURL := flag.String("base-url", "", "backend API base URL")
	dataDir := flag.String("data-dir", "", "directory for the database and log")
	user := flag.String("user", "", "dashboard username")
	sessionID := flag.String("session", "", "resume the snapshots of an earlier session id")
	flag.Parse()

	cfg, err := config.LoadWith(*cfgPath, config.Overrides{
		BaseURL:  *baseURL,
		DataDir:  *dataDir,
		Username: *user,
	})
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if pw := os.Getenv("BERRYMON_PASSWORD"); pw != "" {
		cfg.Backend.Password = pw
	}

	logger, logCloser, err := logging.Open(cfg.LogFile)
	if err != nil {
		fmt.Printf("❌ Failed to open log: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	session := *sessionID
	if session == "" {
		session = uuid.NewString()
	}
	logger.Printf("berrymon starting: backend=%s session=%s config=%q", cfg.Backend.BaseURL, session, cfg.LoadedFrom)

	// Create storage
	store, err := storage.NewStorage(cfg.DataDir, session, logger)
	if err != nil {
		fmt.Printf("❌ Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// Create backend client
	client := backend.NewClient(cfg.BackendClientConfig())
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := authenticate(ctx, client, store, cfg, logger); err != nil {
		fmt.Printf("❌ Failed to log in to %s: %v\n", cfg.Backend.BaseURL, err)
		fmt.Println("\nSet backend.username/password in the config,")
		fmt.Printf("or export %s with a valid token.\n", config.TokenEnv)
		os.Exit(1)
	}
	if cfg.Backend.Username != "" {
		client.SetCredentials(cfg.Backend.Username, cfg.Backend.Password, func(tok string) {
			logger.Printf("auth: token expired, logged in again")
			if err := store.Set(tokenKey, tok); err != nil {
				logger.Printf("auth: token not remembered: %v", err)
			}
		})
	}

	updates := make(chan feed.Update, 64)
	deliver := func(u feed.Update) {
		select {
		case updates <- u:
		case <-ctx.Done():
		}
	}

	sessions := make([]*feed.Session, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		sessions = append(sessions, feed.New(feed.Options{
			Feed:           f,
			Client:         client,
			Store:          store,
			StatusInterval: cfg.Poll.StatusInterval,
			DataInterval:   cfg.Poll.DataInterval,
			Cap:            cfg.Poll.Cap,
			Logger:         logger,
			Context:        ctx,
			Deliver:        deliver,
		}))
	}

	overviewResults := make(chan poll.Result, 8)
	ov := overview.New(overview.Options{
		Feeds:    cfg.Feeds,
		Client:   client,
		Interval: cfg.Poll.StatusInterval,
		Logger:   logger,
		Context:  ctx,
		Deliver: func(r poll.Result) {
			select {
			case overviewResults <- r:
			case <-ctx.Done():
			}
		},
	})

	// Start TUI
	m := tui.NewModel(sessions, updates, logger).
		WithOverview(ov, overviewResults).
		WithConsole(console.New(client, store, logger))
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, runErr := p.Run()

	ov.Stop()
	for _, s := range sessions {
		s.Close()
	}
	cancel()

	if runErr != nil {
		logger.Printf("program: %v", runErr)
		store.Close()
		fmt.Printf("Error running program: %v\n", runErr)
		os.Exit(1)
	}
	logger.Printf("berrymon stopped (session %s)", session)
}

// authenticate makes sure the client holds a working bearer token: an explicit
// token wins, then the remembered one, then a fresh login with credentials
func authenticate(ctx context.Context, client *backend.Client, store *storage.Storage, cfg *config.Config, logger *log.Logger) error {
	if client.Token() == "" {
		if tok, ok := store.Get(tokenKey); ok {
			client.SetToken(tok)
		}
	}

	if client.Token() != "" && len(cfg.Feeds) > 0 {
		_, err := client.Status(ctx, cfg.Feeds[0])
		if err == nil {
			return nil
		}
		if !backend.IsUnauthorized(err) {
			// backend unreachable; the dashboard will show fetch errors
			logger.Printf("auth: token check failed: %v", err)
			return nil
		}
		logger.Printf("auth: stored token rejected")
		client.SetToken("")
		if err := store.Remove(tokenKey); err != nil {
			logger.Printf("auth: %v", err)
		}
	}

	if client.Token() != "" {
		return nil
	}
	if cfg.Backend.Username == "" {
		return errors.New("no token and no username configured")
	}

	tok, err := client.Login(ctx, cfg.Backend.Username, cfg.Backend.Password)
	if err != nil {
		return err
	}
	if err := store.Set(tokenKey, tok); err != nil {
		logger.Printf("auth: token not remembered: %v", err)
	}
	logger.Printf("auth: logged in as %s", cfg.Backend.Username)
	return nil
}
