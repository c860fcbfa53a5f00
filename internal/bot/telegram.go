package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ni225-oracle/internal/features"
	"ni225-oracle/internal/lock"
	"ni225-oracle/internal/service"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"
)

const usage = "Usage: /signal [full] [open]\nA manual open only applies without full.\nExample: /signal 38512.5"

// SignalRunner is what the bot needs from the signal service.
type SignalRunner interface {
	Run(ctx context.Context, req service.RunRequest) (*service.Report, error)
	Latest(ctx context.Context, profile string) (*service.Report, error)
}

var newBot = tele.NewBot

// StartTelegramBot registers the commands and starts polling in the
// background. An empty token disables the bot and returns nil.
func StartTelegramBot(token string, signals SignalRunner, log zerolog.Logger) (*tele.Bot, error) {
	if token == "" {
		log.Info().Msg("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil, nil
	}
	b, err := newBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create Telegram bot: %w", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})
	b.Handle("/signal", func(c tele.Context) error {
		_ = c.Notify(tele.Typing)
		return c.Send(signalReply(context.Background(), signals, c.Args()))
	})
	b.Handle("/latest", func(c tele.Context) error {
		return c.Send(latestReply(context.Background(), signals, c.Args()))
	})

	log.Info().Msg("Telegram bot started")
	go b.Start()
	return b, nil
}

// parseArgs accepts an optional profile name and an optional manual open
// in either order.
func parseArgs(args []string) (profile string, open *float64, err error) {
	for _, arg := range args {
		if _, perr := features.ProfileByName(arg); perr == nil {
			profile = arg
			continue
		}
		if open != nil {
			return "", nil, errors.New("more than one open price given")
		}
		open, err = service.ParseManualOpen(arg)
		if err != nil {
			return "", nil, err
		}
	}
	return profile, open, nil
}

func signalReply(ctx context.Context, signals SignalRunner, args []string) string {
	profile, open, err := parseArgs(args)
	if err != nil {
		return fmt.Sprintf("%v\n%s", err, usage)
	}
	report, err := signals.Run(ctx, service.RunRequest{Profile: profile, ManualOpen: open, Trigger: service.TriggerTelegram})
	if errors.Is(err, lock.ErrHeld) {
		return "A run is already in progress, try /latest in a minute."
	}
	if errors.Is(err, service.ErrManualOpenUnsupported) {
		return fmt.Sprintf("%v\n%s", err, usage)
	}
	if err != nil {
		return fmt.Sprintf("Signal run failed: %v", err)
	}
	return service.FormatText(report)
}

func latestReply(ctx context.Context, signals SignalRunner, args []string) string {
	profile := ""
	if len(args) > 0 {
		profile = args[0]
	}
	if _, err := features.ProfileByName(profile); err != nil {
		return err.Error()
	}
	report, err := signals.Latest(ctx, profile)
	if errors.Is(err, service.ErrNoReport) {
		return "No signal yet. Run /signal first."
	}
	if err != nil {
		return fmt.Sprintf("Could not load the latest signal: %v", err)
	}
	return service.FormatText(report)
}

// ChatNotifier posts scheduled reports to one chat.
type ChatNotifier struct {
	bot  *tele.Bot
	chat tele.ChatID
}

func NewChatNotifier(b *tele.Bot, chatID int64) *ChatNotifier {
	return &ChatNotifier{bot: b, chat: tele.ChatID(chatID)}
}

func (n *ChatNotifier) Notify(_ context.Context, text string) error {
	_, err := n.bot.Send(n.chat, text)
	return err
}
