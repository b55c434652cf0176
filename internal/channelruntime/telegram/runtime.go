package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quailyquaily/collagebot/intake"
	"github.com/quailyquaily/collagebot/internal/channelruntime/worker"
	"github.com/quailyquaily/collagebot/internal/chatkey"
	"github.com/quailyquaily/collagebot/internal/filecache"
	"github.com/quailyquaily/collagebot/internal/photobuffer"
)

type telegramJob struct {
	ChatID    int64
	MessageID int64
	ChatType  string
	Kind      intake.Kind
	Text      string
	Photo     photoRef
}

type telegramChatWorker struct {
	Jobs chan telegramJob
}

// Run long-polls the Bot API and feeds every allowed chat into the collage
// intake controller until ctx is canceled.
func Run(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	opts = normalizeRunOptions(opts)
	if opts.BotToken == "" {
		return fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or COLLAGEBOT_TELEGRAM_BOT_TOKEN)")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := newTelegramAPI(opts.HTTPClient, opts.BaseURL, opts.BotToken)
	me, err := api.getMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}

	cache, err := filecache.Open(filecache.Options{
		Dir:           opts.FileCacheDir,
		MaxAge:        opts.FileCacheMaxAge,
		MaxFiles:      opts.FileCacheMaxFiles,
		MaxTotalBytes: opts.FileCacheMaxTotalBytes,
	})
	if err != nil {
		return fmt.Errorf("telegram file cache: %w", err)
	}
	buffer := photobuffer.New(photobuffer.Options{
		IdleTTL:          opts.BufferIdleTTL,
		MaxConversations: opts.BufferMaxConversations,
	})
	sweepOnce(logger, buffer, cache, time.Now())

	gw := newGateway(api, logger, opts.Hooks, opts.SendRetryAttempts, opts.SendRetryDelay)
	ctrl, err := intake.New(intake.Options{
		Threshold: opts.Threshold,
		Collage:   opts.Collage,
		Messages:  opts.Messages,
		Buffer:    buffer,
		Gateway:   gw,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	h := &jobHandler{
		ctrl:        ctrl,
		downloader:  &photoDownloader{api: api, cache: cache, maxBytes: opts.MaxPhotoBytes},
		logger:      logger,
		hooks:       opts.Hooks,
		taskTimeout: opts.TaskTimeout,
	}

	allowed := make(map[int64]bool, len(opts.AllowedChatIDs))
	for _, id := range opts.AllowedChatIDs {
		allowed[id] = true
	}

	logger.Info("telegram_start",
		"base_url", opts.BaseURL,
		"bot_username", me.Username,
		"bot_id", me.ID,
		"poll_timeout", opts.PollTimeout.String(),
		"task_timeout", opts.TaskTimeout.String(),
		"max_concurrency", opts.MaxConcurrency,
		"threshold", ctrl.Threshold(),
		"collage_width", opts.Collage.Width,
		"collage_margin", opts.Collage.Margin,
		"allowed_chats", len(allowed),
		"file_cache_dir", cache.Dir(),
	)

	workersCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	// Jobs already running outlive ctx until ShutdownTimeout.
	handleCtx, cancelHandle := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelHandle()
	var inflight sync.WaitGroup
	stop := func() error {
		logger.Info("telegram_stop", "reason", "context_canceled")
		cancelWorkers()
		waitInflight(&inflight, opts.ShutdownTimeout, cancelHandle, logger)
		return nil
	}

	go runSweeper(workersCtx, opts.SweepInterval, logger, buffer, cache)

	var mu sync.Mutex
	workers := make(map[int64]*telegramChatWorker)
	sem := make(chan struct{}, opts.MaxConcurrency)
	getOrStartWorkerLocked := func(chatID int64) *telegramChatWorker {
		if w, ok := workers[chatID]; ok && w != nil {
			return w
		}
		w := &telegramChatWorker{Jobs: make(chan telegramJob, opts.ChatQueueSize)}
		workers[chatID] = w

		worker.Start(worker.StartOptions[telegramJob]{
			Ctx:         workersCtx,
			HandleCtx:   handleCtx,
			WG:          &inflight,
			Sem:         sem,
			Jobs:        w.Jobs,
			Handle:      h.handle,
			IdleTimeout: opts.WorkerIdleTimeout,
			OnIdle: func() bool {
				mu.Lock()
				defer mu.Unlock()
				if len(w.Jobs) > 0 {
					return false
				}
				if workers[chatID] == w {
					delete(workers, chatID)
				}
				logger.Debug("telegram_worker_retired", "chat_id", chatID)
				return true
			},
		})
		return w
	}

	var offset int64
	for {
		updates, nextOffset, err := api.getUpdates(ctx, offset, opts.PollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return stop()
			}
			if isTelegramPollTimeoutError(err) {
				logger.Debug("telegram_get_updates_timeout", "error", err.Error())
			} else {
				logger.Warn("telegram_get_updates_error", "error", err.Error())
				callErrorHook(ctx, logger, opts.Hooks, ErrorEvent{Stage: ErrorStagePoll, Err: err})
			}
			select {
			case <-ctx.Done():
				return stop()
			case <-time.After(1 * time.Second):
			}
			continue
		}
		offset = nextOffset

		for _, u := range updates {
			// Edits of earlier messages never add photos.
			msg := u.Message
			if msg == nil || msg.Chat == nil {
				continue
			}
			if msg.From != nil && msg.From.IsBot {
				continue
			}
			chatID := msg.Chat.ID
			if len(allowed) > 0 && !allowed[chatID] {
				logger.Debug("telegram_chat_not_allowed", "chat_id", chatID, "message_id", msg.MessageID)
				continue
			}
			job := jobFromMessage(msg)
			callInboundHook(ctx, logger, opts.Hooks, InboundEvent{
				ChatID:    job.ChatID,
				MessageID: job.MessageID,
				ChatType:  job.ChatType,
				Kind:      string(job.Kind),
				Text:      job.Text,
			})

			mu.Lock()
			w := getOrStartWorkerLocked(chatID)
			err := worker.TryEnqueue(w.Jobs, job)
			mu.Unlock()
			if err != nil {
				logger.Warn("telegram_enqueue_error", "chat_id", chatID, "message_id", job.MessageID, "error", err.Error())
				callErrorHook(ctx, logger, opts.Hooks, ErrorEvent{Stage: ErrorStageEnqueue, ChatID: chatID, MessageID: job.MessageID, Err: err})
				if job.Kind == intake.KindPhoto {
					inflight.Add(1)
					go func(job telegramJob, err error) {
						defer inflight.Done()
						h.rejectPhoto(handleCtx, job, err)
					}(job, err)
				}
			}
		}
	}
}

// jobFromMessage classifies a message once. Photos win over captions.
func jobFromMessage(msg *telegramMessage) telegramJob {
	job := telegramJob{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		ChatType:  strings.ToLower(strings.TrimSpace(msg.Chat.Type)),
	}
	if ref, ok := photoFromMessage(msg); ok {
		job.Kind = intake.KindPhoto
		job.Photo = ref
		return job
	}
	if text := strings.TrimSpace(msg.Text); text != "" {
		job.Kind = intake.KindText
		job.Text = text
		return job
	}
	job.Kind = intake.KindOther
	return job
}

type jobHandler struct {
	ctrl        *intake.Controller
	downloader  *photoDownloader
	logger      *slog.Logger
	hooks       Hooks
	taskTimeout time.Duration
}

func (h *jobHandler) handle(ctx context.Context, job telegramJob) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			h.logger.Error("telegram_handle_panic", "chat_id", job.ChatID, "message_id", job.MessageID, "error", err.Error())
			callErrorHook(ctx, h.logger, h.hooks, ErrorEvent{Stage: ErrorStageHandle, ChatID: job.ChatID, MessageID: job.MessageID, Err: err})
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, h.taskTimeout)
	defer cancel()

	// A zero chat id yields an empty key, which intake drops as unroutable.
	conv, _ := chatkey.Telegram(job.ChatID)
	var ev intake.Event
	switch job.Kind {
	case intake.KindPhoto:
		data, err := h.downloader.download(runCtx, job.ChatID, job.MessageID, job.Photo)
		if err != nil {
			h.logger.Warn("telegram_download_photo_error",
				"chat_id", job.ChatID,
				"message_id", job.MessageID,
				"file_kind", job.Photo.Kind,
				"error", err.Error(),
			)
			callErrorHook(runCtx, h.logger, h.hooks, ErrorEvent{Stage: ErrorStageDownloadPhoto, ChatID: job.ChatID, MessageID: job.MessageID, Err: err})
			ev = intake.PhotoFetchFailedEvent(conv, err)
		} else {
			ev = intake.PhotoEvent(conv, data)
		}
	case intake.KindText:
		ev = intake.TextEvent(conv, job.Text)
	default:
		ev = intake.OtherEvent(conv)
	}
	ev.MessageID = strconv.FormatInt(job.MessageID, 10)

	outcome, err := h.ctrl.Handle(runCtx, ev)
	if err != nil {
		// Delivery failures already reached the error hook from the gateway.
		h.logger.Warn("telegram_handle_error",
			"chat_id", job.ChatID,
			"message_id", job.MessageID,
			"outcome", string(outcome),
			"error", err.Error(),
		)
		return
	}
	h.logger.Debug("telegram_handled", "chat_id", job.ChatID, "message_id", job.MessageID, "outcome", string(outcome))
}

// rejectPhoto answers a photo that never reached the chat's worker, so the
// sender knows to send it again instead of losing count.
func (h *jobHandler) rejectPhoto(ctx context.Context, job telegramJob, cause error) {
	runCtx, cancel := context.WithTimeout(ctx, h.taskTimeout)
	defer cancel()
	conv, _ := chatkey.Telegram(job.ChatID)
	ev := intake.PhotoFetchFailedEvent(conv, fmt.Errorf("%w: %w", intake.ErrGatewayDownload, cause))
	ev.MessageID = strconv.FormatInt(job.MessageID, 10)
	if _, err := h.ctrl.Handle(runCtx, ev); err != nil {
		h.logger.Warn("telegram_reject_photo_error", "chat_id", job.ChatID, "message_id", job.MessageID, "error", err.Error())
	}
}

// waitInflight waits for running jobs; after timeout their context is
// canceled and the wait continues until they return.
func waitInflight(wg *sync.WaitGroup, timeout time.Duration, cancel context.CancelFunc, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-time.After(timeout):
	}
	logger.Warn("telegram_shutdown_timeout", "timeout", timeout.String())
	cancel()
	<-done
}

func runSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger, buffer *photobuffer.Store, cache *filecache.Cache) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sweepOnce(logger, buffer, cache, now)
		}
	}
}

func sweepOnce(logger *slog.Logger, buffer *photobuffer.Store, cache *filecache.Cache, now time.Time) {
	if n := buffer.Sweep(now); n > 0 {
		logger.Info("photo_buffer_swept", "evicted", n, "remaining", buffer.Len())
	}
	removed, err := cache.Prune(now)
	if err != nil {
		logger.Warn("file_cache_prune_error", "dir", cache.Dir(), "error", err.Error())
		return
	}
	if removed > 0 {
		logger.Info("file_cache_pruned", "dir", cache.Dir(), "removed", removed)
	}
}
