package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"ni225-oracle/internal/app"
	"ni225-oracle/internal/config"
	"ni225-oracle/internal/service"
	"ni225-oracle/internal/tui"
	"ni225-oracle/pkg/logger"
	"ni225-oracle/pkg/tracing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gossh "golang.org/x/crypto/ssh"
)

// ctxKey is a typed context key to avoid collisions.
type ctxKey string

const sshUserKey ctxKey = "ssh_user"

var (
	loadEnvFunc       = godotenv.Load
	loadConfigFunc    = config.Load
	initTracerFunc    = tracing.InitTracer
	buildAppFunc      = app.Build
	newWishServerFunc = wish.NewServer
	setupSignalNotify = ossignal.Notify
	waitForSignalFunc = func(quit <-chan os.Signal) { <-quit }
)

func main() {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx, "ni225-oracle-ssh")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	keys, err := loadAuthorizedKeys(cfg.SSHAuthorizedKeys)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load authorized keys")
	}
	if len(keys) == 0 {
		log.Warn().Msg("SSH_AUTHORIZED_KEYS empty, every login will be rejected")
	}

	a, err := buildAppFunc(ctx, cfg, log, tracer, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build signal service")
	}
	defer a.Close()

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.SSHPort)
	srv, err := newWishServerFunc(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithPublicKeyAuth(publicKeyHandler(keys, log)),
		wish.WithMiddleware(
			bubbletea.Middleware(sessionHandler(a.Signals, cfg.Profile)),
			logging.Middleware(),
		),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create SSH server")
	}

	if srv != nil {
		go func() {
			log.Info().Str("addr", addr).Msg("SSH server listening")
			if err := srv.ListenAndServe(); err != nil {
				log.Info().Err(err).Msg("SSH server stopped")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("Shutting down SSH server...")

	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("SSH server shutdown error")
		}
	}

	log.Info().Msg("SSH server exited")
}

// loadAuthorizedKeys reads an authorized_keys file into a map from SHA256
// fingerprint to the key comment. An empty path yields no keys.
func loadAuthorizedKeys(path string) (map[string]string, error) {
	keys := make(map[string]string)
	if path == "" {
		return keys, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		key, comment, _, _, err := gossh.ParseAuthorizedKey(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		if comment == "" {
			comment = "unknown"
		}
		keys[gossh.FingerprintSHA256(key)] = comment
	}
	return keys, scanner.Err()
}

func publicKeyHandler(keys map[string]string, log zerolog.Logger) ssh.PublicKeyHandler {
	return func(ctx ssh.Context, key ssh.PublicKey) bool {
		fingerprint := gossh.FingerprintSHA256(key)
		user, ok := keys[fingerprint]
		if !ok {
			log.Warn().Str("fingerprint", fingerprint).Msg("SSH auth denied")
			return false
		}
		ctx.SetValue(sshUserKey, user)
		log.Info().Str("user", user).Str("fingerprint", fingerprint).Msg("SSH auth accepted")
		return true
	}
}

func sessionHandler(signals tui.Runner, profile string) bubbletea.Handler {
	return func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
		user, _ := s.Context().Value(sshUserKey).(string)
		if user == "" {
			user = "unknown"
		}

		model := tui.New(signals, tui.Options{
			Profile:  profile,
			Trigger:  service.TriggerSSH,
			Greeting: fmt.Sprintf("Hello %s.", user),
		})
		pty, _, _ := s.Pty()
		model.SetSize(pty.Window.Width, pty.Window.Height)

		return model, []tea.ProgramOption{tea.WithAltScreen()}
	}
}
