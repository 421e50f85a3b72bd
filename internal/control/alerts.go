package control

import (
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Alerter sends best-effort Telegram notifications for Fatal-class
// errors and Hedger deactivation. It is optional: with no bot token
// configured, every method is a no-op.
type Alerter struct {
	mu     sync.Mutex
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewAlerter creates an Alerter. If token is empty the returned Alerter
// is inert — every notify call simply returns — since Telegram alerting
// is a convenience, not a dependency any OMS operation should block on.
func NewAlerter(token string, chatID int64) *Alerter {
	if token == "" {
		return &Alerter{}
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Warn().Err(err).Msg("control: telegram bot disabled, failed to initialize")
		return &Alerter{}
	}

	log.Info().Str("username", api.Self.UserName).Msg("control: telegram alerting enabled")
	return &Alerter{api: api, chatID: chatID}
}

func (a *Alerter) active() bool {
	return a.api != nil && a.chatID != 0
}

func (a *Alerter) send(text string) {
	if !a.active() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	msg := tgbotapi.NewMessage(a.chatID, text)
	if _, err := a.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("control: telegram send failed")
	}
}

// NotifyStartup announces the OMS process coming up.
func (a *Alerter) NotifyStartup(omsIdentifier string) {
	a.send(fmt.Sprintf("oms %s started", omsIdentifier))
}

// NotifyFatal reports an unhandled error that triggered a bulk-cancel
// shutdown.
func (a *Alerter) NotifyFatal(omsIdentifier string, err error) {
	a.send(fmt.Sprintf("oms %s: fatal error, shutting down: %s", omsIdentifier, err.Error()))
}

// NotifyHedgerDeactivated reports a Hedger that permanently deactivated
// itself (unsupported currency pair or base-currency mismatch).
func (a *Alerter) NotifyHedgerDeactivated(omsIdentifier, symbol string, reason error) {
	a.send(fmt.Sprintf("oms %s: hedger for %s deactivated: %s", omsIdentifier, symbol, reason.Error()))
}
