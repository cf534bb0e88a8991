// Package notify sends operator-facing Telegram alerts for safety-state
// transitions (reduce-only enter/exit, halts, evolution rollbacks).
// Grounded on the teacher's bot/telegram.go — reused for its shape (bot
// token + chat id, api.Send over tgbotapi.NewMessage) rather than its
// Polymarket command surface; this package has no command loop and no
// stats provider, only one-way notifications the controller fires on
// safety transitions.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Config controls whether notifications are sent and where.
type Config struct {
	Enabled bool
	BotToken string
	ChatID   int64
}

// Notifier sends Telegram alerts; a disabled or unconfigured Notifier is
// a safe no-op so callers never need to branch on whether it's wired.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

// New constructs a Notifier. If cfg.Enabled is false, it returns a no-op
// Notifier rather than an error, since notifications are always optional.
func New(cfg Config, log zerolog.Logger) (*Notifier, error) {
	if !cfg.Enabled {
		return &Notifier{log: log}, nil
	}
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram bot init: %w", err)
	}
	return &Notifier{api: api, chatID: cfg.ChatID, log: log}, nil
}

func (n *Notifier) send(text string) {
	if n == nil || n.api == nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := n.api.Send(msg); err != nil {
		n.log.Error().Err(err).Msg("notify: telegram send failed")
	}
}

// Startup announces process start.
func (n *Notifier) Startup(mode, symbol string) {
	n.send(fmt.Sprintf("🚀 *tradecore started*\nmode: `%s`\nsymbol: `%s`", mode, symbol))
}

// ReduceOnlyEntered announces a forced reduce-only transition.
func (n *Notifier) ReduceOnlyEntered(source, reason string) {
	n.send(fmt.Sprintf("⚠️ *reduce-only entered*\nsource: `%s`\nreason: `%s`", source, reason))
}

// ReduceOnlyExited announces a reduce-only release.
func (n *Notifier) ReduceOnlyExited(source string) {
	n.send(fmt.Sprintf("✅ *reduce-only released*\nsource: `%s`", source))
}

// Halted announces a trading halt, which (unlike reduce-only) may require
// operator intervention to clear.
func (n *Notifier) Halted(source, reason string) {
	n.send(fmt.Sprintf("🛑 *trading halted*\nsource: `%s`\nreason: `%s`", source, reason))
}

// EvolutionAction announces a self-evolution window decision.
func (n *Notifier) EvolutionAction(bucket, action, reason string) {
	if action == "None" || action == "Skipped" {
		return
	}
	n.send(fmt.Sprintf("🧬 *evolution %s*\nbucket: `%s`\nreason: `%s`", action, bucket, reason))
}

// Error announces an unrecoverable or noteworthy error.
func (n *Notifier) Error(err error) {
	n.send(fmt.Sprintf("❌ *error*\n`%s`", err.Error()))
}
