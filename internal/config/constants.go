package config

import "time"

const (
	// Generation request timeout (non-streaming)
	RequestTimeout = 90 * time.Second

	// Upper bound for a whole streamed turn
	StreamTimeout = 5 * time.Minute

	// Minimum gap between edits of a streaming status message
	StreamEditInterval = 1200 * time.Millisecond

	// Manifest cache duration
	ManifestCacheDuration = 1 * time.Hour

	// Credits cache duration
	CreditsCacheDuration = 30 * time.Second

	// Telegram limits
	MaxTelegramMessageLen = 4096
	MaxCaptionLen         = 1024

	// Largest remote image the cache will download
	MaxImageDownloadBytes = 20 << 20

	// Gallery items kept per owner
	GalleryLimit = 200

	// Messages of prior context sent with each request
	MaxHistoryMessages = 20

	// Chat title length (runes)
	MaxTitleLen = 40

	// Rate limit (messages per minute, burst)
	RateLimitPerMinute = 10
	RateLimitBurst     = 3

	// Chats per page
	ChatsPerPage = 5

	// Gallery items per page
	GalleryPerPage = 1

	// Idle conversations are evicted from memory after this long
	ConversationIdleTTL = 30 * time.Minute
	ConversationSweep   = 5 * time.Minute
)
