package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Kotpilota/crypto-tracker-bot/internal/config"
	"github.com/Kotpilota/crypto-tracker-bot/internal/pricesource"
	"github.com/Kotpilota/crypto-tracker-bot/internal/store"
)

// Pending state keys used in conversational flows.
const (
	pendingAmount    = "await_amount_text"
	pendingThreshold = "await_threshold_text"
	pendingInvested  = "await_invested_text"
)

// Router wires Telegram updates to handlers and holds minimal in-memory
// state. Users track the first configured coin; the store supports more.
type Router struct {
	bot              *tgbotapi.BotAPI
	log              *zap.Logger
	repo             store.Repo
	prices           *pricesource.Client
	defaultCoin      config.CoinSpec
	defaultThreshold decimal.Decimal
	adminChatID      int64

	state map[int64]string // chatID -> pending state
	mu    sync.RWMutex
}

// NewRouter creates a new Telegram router.
func NewRouter(bot *tgbotapi.BotAPI, log *zap.Logger, repo store.Repo, prices *pricesource.Client, cfg config.Config) *Router {
	return &Router{
		bot:              bot,
		log:              log,
		repo:             repo,
		prices:           prices,
		defaultCoin:      cfg.Coins[0],
		defaultThreshold: cfg.DefaultThreshold,
		adminChatID:      cfg.AdminChatID,
		state:            make(map[int64]string),
	}
}

// setPending sets a pending state for a chat (non-persistent, in-memory).
func (r *Router) setPending(chatID int64, s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[chatID] = s
}

// getPending returns current pending state for a chat.
func (r *Router) getPending(chatID int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state[chatID]
}

// clearPending clears a pending state for a chat.
func (r *Router) clearPending(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, chatID)
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	chatID := upd.Message.Chat.ID
	text := strings.TrimSpace(upd.Message.Text)

	switch {
	case strings.HasPrefix(text, "/start"):
		r.handleStart(ctx, chatID)
	case strings.HasPrefix(text, "/remove"):
		r.handleRemove(ctx, chatID)
	case strings.HasPrefix(text, "/stats"):
		r.handleStats(ctx, chatID)
	case text == buttonAmount:
		r.askNumber(chatID, "Enter the number of coins you hold:", pendingAmount)
	case text == buttonThreshold:
		r.askNumber(chatID, "Enter the alert threshold in percent (e.g. 5 or 0.5):", pendingThreshold)
	case text == buttonInvested:
		r.askNumber(chatID, "Enter the amount you invested:", pendingInvested)
	case text == buttonInfo || strings.HasPrefix(text, "/info"):
		r.handleInfo(ctx, chatID)
	default:
		r.handleFreeForm(ctx, chatID, text)
	}
}
