package telegram

import (
	"context"
	"log/slog"
)

type InboundEvent struct {
	ChatID    int64
	MessageID int64
	ChatType  string
	Kind      string
	Text      string
}

type OutboundEvent struct {
	ChatID int64
	Kind   string // text|photo
	Text   string
	Bytes  int
}

type ErrorStage string

const (
	ErrorStagePoll            ErrorStage = "poll"
	ErrorStageEnqueue         ErrorStage = "enqueue"
	ErrorStageDownloadPhoto   ErrorStage = "download_photo"
	ErrorStageHandle          ErrorStage = "handle"
	ErrorStageDeliverOutbound ErrorStage = "deliver_outbound"
)

type ErrorEvent struct {
	Stage     ErrorStage
	ChatID    int64
	MessageID int64
	Err       error
}

// Hooks observe the runtime. They run synchronously on the worker
// goroutine and must not block.
type Hooks struct {
	OnInbound  func(InboundEvent)
	OnOutbound func(OutboundEvent)
	OnError    func(ErrorEvent)
}

func callInboundHook(ctx context.Context, logger *slog.Logger, hooks Hooks, event InboundEvent) {
	if hooks.OnInbound == nil {
		return
	}
	defer recoverHook(ctx, logger, "inbound")
	hooks.OnInbound(event)
}

func callOutboundHook(ctx context.Context, logger *slog.Logger, hooks Hooks, event OutboundEvent) {
	if hooks.OnOutbound == nil {
		return
	}
	defer recoverHook(ctx, logger, "outbound")
	hooks.OnOutbound(event)
}

func callErrorHook(ctx context.Context, logger *slog.Logger, hooks Hooks, event ErrorEvent) {
	if hooks.OnError == nil {
		return
	}
	defer recoverHook(ctx, logger, "error")
	hooks.OnError(event)
}

func recoverHook(ctx context.Context, logger *slog.Logger, name string) {
	if r := recover(); r != nil && logger != nil {
		logger.WarnContext(ctx, "telegram_hook_panic", "hook", name, "panic", r)
	}
}
