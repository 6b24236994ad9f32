package main

import (
	"log/slog"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
)

const sessionReapInterval = 5 * time.Minute

func main() {
	// .env is optional; real deployments inject the environment directly.
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	cfg := LoadConfig()
	initLogger(cfg)

	if cfg.BotToken == "" {
		slog.Error("BOT_TOKEN is required")
		os.Exit(1)
	}
	if cfg.SuperAdminID == 0 {
		slog.Error("SUPER_ADMIN_ID is required")
		os.Exit(1)
	}

	ensureParentDir(cfg.ClientsFile)
	ensureParentDir(cfg.AdminsFile)
	clients := NewClientStore(cfg.ClientsFile)
	admins := NewAdminStore(cfg.AdminsFile, cfg.SuperAdminID)

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		slog.Error("failed to authenticate the bot", "error", err)
		os.Exit(1)
	}

	server := NewSyncClient(cfg.ProxyServerURL)
	app := &App{
		cfg:      cfg,
		bot:      bot,
		clients:  clients,
		admins:   admins,
		reseller: NewResellerClient(cfg.ResellerBaseURL, cfg.ResellerAPIKey),
		server:   server,
		rec:      NewReconciler(clients, server),
		sessions: NewSessionStore(cfg.SessionTTL),
	}

	go app.startHealthServer()

	go func() {
		for range time.Tick(sessionReapInterval) {
			if n := app.sessions.Reap(); n > 0 {
				slog.Debug("expired sessions evicted", "count", n)
			}
		}
	}()

	slog.Info("bot started",
		"username", bot.Self.UserName,
		"proxy_server", cfg.ProxyServerURL,
		"reseller_configured", cfg.ResellerAPIKey != "",
		"buy_count", cfg.BuyCount,
		"buy_period", cfg.BuyPeriod,
		"buy_country", cfg.BuyCountry,
		"buy_version", cfg.BuyVersion,
	)
	slog.Debug("admin set loaded", "super_admin", cfg.SuperAdminID, "admins", admins.Count())

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	for update := range bot.GetUpdatesChan(u) {
		if update.Message != nil {
			app.handleMessage(update.Message)
		} else if update.CallbackQuery != nil {
			app.handleCallback(update.CallbackQuery)
		}
	}
}
