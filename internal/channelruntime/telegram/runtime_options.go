package telegram

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quailyquaily/collagebot/collage"
	"github.com/quailyquaily/collagebot/intake"
	"github.com/quailyquaily/collagebot/internal/photobuffer"
)

type RunOptions struct {
	BotToken       string
	BaseURL        string
	AllowedChatIDs []int64
	PollTimeout    time.Duration

	// TaskTimeout bounds downloading, compositing and replying for one message.
	TaskTimeout       time.Duration
	MaxConcurrency    int
	ChatQueueSize     int
	WorkerIdleTimeout time.Duration
	MaxPhotoBytes     int64

	FileCacheDir           string
	FileCacheMaxAge        time.Duration
	FileCacheMaxFiles      int
	FileCacheMaxTotalBytes int64

	Threshold              int
	Collage                collage.Options
	Messages               intake.Messages
	BufferIdleTTL          time.Duration
	BufferMaxConversations int
	SweepInterval          time.Duration

	SendRetryAttempts int
	SendRetryDelay    time.Duration
	// ShutdownTimeout bounds how long Run waits for running jobs after ctx ends.
	ShutdownTimeout time.Duration

	Hooks      Hooks
	Logger     *slog.Logger
	HTTPClient *http.Client
}

func normalizeRunOptions(opts RunOptions) RunOptions {
	opts.BotToken = strings.TrimSpace(opts.BotToken)
	opts.BaseURL = ResolveBaseURL(opts.BaseURL)
	opts.AllowedChatIDs = normalizeAllowedChatIDs(opts.AllowedChatIDs)
	opts.FileCacheDir = strings.TrimSpace(opts.FileCacheDir)

	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 2 * time.Minute
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 3
	}
	if opts.ChatQueueSize <= 0 {
		opts.ChatQueueSize = 16
	}
	if opts.WorkerIdleTimeout <= 0 {
		opts.WorkerIdleTimeout = 10 * time.Minute
	}
	if opts.MaxPhotoBytes <= 0 {
		opts.MaxPhotoBytes = defaultMaxDownloadBytes
	}
	if opts.FileCacheDir == "" {
		opts.FileCacheDir = "~/.cache/collagebot"
	}
	if opts.FileCacheMaxAge <= 0 {
		opts.FileCacheMaxAge = 24 * time.Hour
	}
	if opts.FileCacheMaxFiles <= 0 {
		opts.FileCacheMaxFiles = 1000
	}
	if opts.FileCacheMaxTotalBytes <= 0 {
		opts.FileCacheMaxTotalBytes = int64(512 * 1024 * 1024)
	}
	if opts.Threshold <= 0 {
		opts.Threshold = intake.DefaultThreshold
	}
	if opts.Collage.Width == 0 && opts.Collage.Quality == 0 {
		opts.Collage = collage.DefaultOptions()
	}
	if opts.BufferIdleTTL <= 0 {
		opts.BufferIdleTTL = photobuffer.DefaultIdleTTL
	}
	if opts.BufferMaxConversations <= 0 {
		opts.BufferMaxConversations = photobuffer.DefaultMaxConversations
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 10 * time.Minute
	}
	if opts.SendRetryAttempts <= 0 {
		opts.SendRetryAttempts = 2
	}
	if opts.SendRetryDelay <= 0 {
		opts.SendRetryDelay = 2 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	return opts
}

// ResolveBaseURL maps the presets "telegram" and "bale" to their Bot API
// endpoints. Bale serves the same Bot API shape, including /file/bot<token>/
// downloads. Anything else is used as a URL; empty means Telegram.
func ResolveBaseURL(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "telegram":
		return defaultBaseURL
	case "bale":
		return baleBaseURL
	}
	return strings.TrimRight(s, "/")
}

func normalizeAllowedChatIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
