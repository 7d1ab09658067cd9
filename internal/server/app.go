// Package server initializes and runs the chat server. It wires the
// database, the encryption engine, the presence registry and the delivery
// protocol together, and hosts the websocket transport and the REST surface
// on one HTTP endpoint with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peertutor/tutorchat/internal/cryptox"
	"github.com/peertutor/tutorchat/internal/logging"
	"github.com/peertutor/tutorchat/internal/server/chat"
	"github.com/peertutor/tutorchat/internal/server/config"
	"github.com/peertutor/tutorchat/internal/server/httpapi"
	"github.com/peertutor/tutorchat/internal/server/pin"
	"github.com/peertutor/tutorchat/internal/server/presence"
	"github.com/peertutor/tutorchat/internal/server/repositories/repomanager"
	"github.com/peertutor/tutorchat/internal/server/ws"
)

const shutdownTimeout = 10 * time.Second

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	httpServer *http.Server
}

func NewApp(c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(c.LogLevel)}))
	logger := logging.NewSlogLogger(slogger)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	var kp cryptox.KeyProvider
	if c.EncryptionKeyHex != "" {
		kp, err = cryptox.NewStaticKeyProvider(c.EncryptionKeyHex)
		if err != nil {
			return nil, fmt.Errorf("encryption key: %w", err)
		}
	} else {
		kp = cryptox.NewFileKeyProvider(c.EncryptionKeyFile)
	}

	engine, err := cryptox.NewEngine(kp)
	if err != nil {
		return nil, fmt.Errorf("encryption engine: %w", err)
	}

	registry := presence.NewInMemory()
	chatSvc := chat.NewService(db, m, engine, registry, logger)
	gate := pin.NewGate(db, m, pin.NewInMemorySessionStore())

	wsServer := ws.NewServer(db, m, chatSvc, registry, c.SecretKey, logger)
	api := httpapi.NewHandler(db, m, chatSvc, gate, c.SecretKey, c.HistoryPageSize, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsServer.HandleWS)
	api.Register(mux)

	httpServer := &http.Server{
		Addr:    c.EndpointAddr,
		Handler: mux,
	}

	return &App{config: c, logger: logger, db: db, httpServer: httpServer}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	app.logger.Info(ctx, "listening", "addr", app.config.EndpointAddr)

	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	<-ctx.Done()

	shutdownCtx, release := context.WithTimeout(context.Background(), shutdownTimeout)
	defer release()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "shutdown error", "error", err)
	}

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(shutdownCtx, "db close error", "error", err)
	}

	app.logger.Info(shutdownCtx, "app stopped")
}
