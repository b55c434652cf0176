package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quailyquaily/collagebot/internal/chatkey"
	"github.com/quailyquaily/collagebot/internal/retryutil"
)

// gateway delivers intake replies through the Bot API.
type gateway struct {
	api                *telegramAPI
	logger             *slog.Logger
	hooks              Hooks
	photoRetry         retryutil.Policy
	chatActionInterval time.Duration
}

func newGateway(api *telegramAPI, logger *slog.Logger, hooks Hooks, retryAttempts int, retryDelay time.Duration) *gateway {
	return &gateway{
		api:    api,
		logger: logger,
		hooks:  hooks,
		photoRetry: retryutil.Policy{
			Attempts:  retryAttempts,
			Delay:     retryDelay,
			Retryable: isRetryableSendError,
		},
		chatActionInterval: 4 * time.Second,
	}
}

func (g *gateway) SendText(ctx context.Context, conversationID, text string) error {
	chatID, err := chatkey.TelegramChatID(conversationID)
	if err != nil {
		return err
	}
	if err := g.api.sendMessageChunked(ctx, chatID, text); err != nil {
		callErrorHook(ctx, g.logger, g.hooks, ErrorEvent{Stage: ErrorStageDeliverOutbound, ChatID: chatID, Err: err})
		return err
	}
	callOutboundHook(ctx, g.logger, g.hooks, OutboundEvent{ChatID: chatID, Kind: "text", Text: text})
	return nil
}

func (g *gateway) SendPhoto(ctx context.Context, conversationID string, image []byte, caption string) error {
	chatID, err := chatkey.TelegramChatID(conversationID)
	if err != nil {
		return err
	}
	filename := "collage_" + uuid.NewString() + ".jpg"
	err = retryutil.Do(ctx, g.logger, "telegram_send_photo", g.photoRetry, func(ctx context.Context) error {
		return g.api.sendPhoto(ctx, chatID, image, filename, caption)
	})
	if err != nil {
		callErrorHook(ctx, g.logger, g.hooks, ErrorEvent{Stage: ErrorStageDeliverOutbound, ChatID: chatID, Err: err})
		return err
	}
	callOutboundHook(ctx, g.logger, g.hooks, OutboundEvent{ChatID: chatID, Kind: "photo", Text: caption, Bytes: len(image)})
	return nil
}

// NotifyComposing shows "sending photo..." until the returned func is called.
func (g *gateway) NotifyComposing(ctx context.Context, conversationID string) func() {
	chatID, err := chatkey.TelegramChatID(conversationID)
	if err != nil {
		return func() {}
	}
	return startChatActionTicker(ctx, g.api, chatID, "upload_photo", g.chatActionInterval)
}

func isRetryableSendError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Temporary()
	}
	return true
}
