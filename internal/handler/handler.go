package handler

import (
	"sync"

	"github.com/go-telegram/bot"

	"github.com/set-night/pixchat/internal/chat"
	"github.com/set-night/pixchat/internal/config"
	"github.com/set-night/pixchat/internal/imagecache"
	"github.com/set-night/pixchat/internal/service"
	"github.com/set-night/pixchat/internal/telegram"
)

// Handler holds all dependencies needed by command and callback handlers.
type Handler struct {
	bot            *bot.Bot
	cfg            *config.Config
	engine         *chat.Engine
	registry       *chat.Registry
	historyService *service.HistoryService
	creditsService *service.CreditsService
	contentService *service.ContentService
	images         *imagecache.Cache
	tgLogger       *telegram.TelegramLogger

	// selected style per chat, applied to following prompts
	stylesMu sync.RWMutex
	styles   map[int64]string
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Bot            *bot.Bot
	Cfg            *config.Config
	Engine         *chat.Engine
	Registry       *chat.Registry
	HistoryService *service.HistoryService
	CreditsService *service.CreditsService
	ContentService *service.ContentService
	Images         *imagecache.Cache
	TgLogger       *telegram.TelegramLogger
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		bot:            deps.Bot,
		cfg:            deps.Cfg,
		engine:         deps.Engine,
		registry:       deps.Registry,
		historyService: deps.HistoryService,
		creditsService: deps.CreditsService,
		contentService: deps.ContentService,
		images:         deps.Images,
		tgLogger:       deps.TgLogger,
		styles:         make(map[int64]string),
	}
}

func (h *Handler) selectedStyle(chatID int64) string {
	h.stylesMu.RLock()
	defer h.stylesMu.RUnlock()
	return h.styles[chatID]
}

func (h *Handler) setStyle(chatID int64, styleID string) {
	h.stylesMu.Lock()
	defer h.stylesMu.Unlock()
	if styleID == "" {
		delete(h.styles, chatID)
		return
	}
	h.styles[chatID] = styleID
}
