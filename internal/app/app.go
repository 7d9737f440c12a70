package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Kotpilota/crypto-tracker-bot/internal/config"
	"github.com/Kotpilota/crypto-tracker-bot/internal/domain"
	"github.com/Kotpilota/crypto-tracker-bot/internal/pricesource"
	"github.com/Kotpilota/crypto-tracker-bot/internal/scheduler"
	"github.com/Kotpilota/crypto-tracker-bot/internal/store"
	"github.com/Kotpilota/crypto-tracker-bot/internal/telegram"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	repo    store.Repo
	router  *telegram.Router
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	return &App{cfg: cfg, log: log, bot: bot, httpSrv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting crypto-tracker-bot",
		zap.Int("poll_interval_sec", a.cfg.PollIntervalSec),
		zap.String("http", a.cfg.HTTPAddr),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo

	if err := a.seedCoins(ctx); err != nil {
		a.log.Error("seed coins failed", zap.Error(err))
		return err
	}
	a.log.Info("sqlite ready", zap.Int("coins", len(a.cfg.Coins)))

	prices := pricesource.New(pricesource.Config{
		BaseURL: a.cfg.APIURL,
		APIKey:  a.cfg.APIKey,
	}, a.log.Named("pricesource"))

	a.router = telegram.NewRouter(a.bot, a.log.Named("telegram"), a.repo, prices, a.cfg)

	poller := scheduler.New(a.repo, prices, a.router,
		a.log.Named("poller"),
		time.Duration(a.cfg.PollIntervalSec)*time.Second,
	)
	go poller.Run(ctx)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")

			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.httpSrv.Shutdown(shCtx)
			cancel()

			if err != nil {
				a.log.Warn("http server shutdown error", zap.Error(err))
			}
			if a.repo != nil {
				_ = a.repo.Close()
			}
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

// seedCoins registers the configured coins; existing rows keep their last
// fetched price.
func (a *App) seedCoins(ctx context.Context) error {
	for _, spec := range a.cfg.Coins {
		coin := domain.Coin{ID: spec.ID, Name: spec.Name, Currency: spec.Currency}
		if err := a.repo.UpsertCoin(ctx, coin); err != nil {
			return err
		}
	}
	return nil
}
