package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/quailyquaily/collagebot/collage"
)

const DefaultThreshold = 3

// Gateway is the outbound side of the messaging transport.
type Gateway interface {
	SendText(ctx context.Context, conversationID, text string) error
	SendPhoto(ctx context.Context, conversationID string, image []byte, caption string) error
}

// ComposingNotifier is implemented by gateways that can show activity while
// a collage is rendered. The returned func stops the indicator.
type ComposingNotifier interface {
	NotifyComposing(ctx context.Context, conversationID string) (stop func())
}

// Buffer is the per-conversation photo store.
type Buffer interface {
	AppendAndDrainIfFull(key string, image []byte, threshold int) (count int, batch [][]byte)
	Clear(key string)
}

type Composer func(images [][]byte, opts collage.Options) (collage.Result, error)

type Options struct {
	Threshold int
	Collage   collage.Options
	Messages  Messages
	Buffer    Buffer
	Gateway   Gateway
	// Compose defaults to collage.Compose.
	Compose Composer
	Logger  *slog.Logger
}

// Outcome names the transition taken for one event.
type Outcome string

const (
	OutcomeDropped        Outcome = "dropped"
	OutcomeProgress       Outcome = "progress"
	OutcomeCollage        Outcome = "collage"
	OutcomeCollageFailed  Outcome = "collage_failed"
	OutcomeDownloadFailed Outcome = "download_failed"
	OutcomeReset          Outcome = "reset"
	OutcomeWelcome        Outcome = "welcome"
	OutcomeInstructions   Outcome = "instructions"
)

type Controller struct {
	threshold int
	collage   collage.Options
	messages  Messages
	buffer    Buffer
	gateway   Gateway
	compose   Composer
	logger    *slog.Logger
}

func New(opts Options) (*Controller, error) {
	if opts.Buffer == nil {
		return nil, fmt.Errorf("buffer is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 1 {
		return nil, fmt.Errorf("threshold must be >= 1 (got %d)", opts.Threshold)
	}
	if opts.Collage.Width == 0 && opts.Collage.Quality == 0 {
		opts.Collage = collage.DefaultOptions()
	}
	if err := opts.Collage.Validate(); err != nil {
		return nil, err
	}
	compose := opts.Compose
	if compose == nil {
		compose = collage.Compose
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		threshold: threshold,
		collage:   opts.Collage,
		messages:  opts.Messages.withDefaults(),
		buffer:    opts.Buffer,
		gateway:   opts.Gateway,
		compose:   compose,
		logger:    logger,
	}, nil
}

func (c *Controller) Threshold() int {
	return c.threshold
}

// Handle applies one inbound event. Processing failures become user replies;
// the returned error only reports a failed outbound send.
func (c *Controller) Handle(ctx context.Context, ev Event) (Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !ev.routable() {
		c.logger.Debug("intake_event_dropped", "reason", "unroutable", "kind", ev.Kind)
		return OutcomeDropped, nil
	}
	logger := c.logger.With("conversation", ev.ConversationID, "run_id", newRunID())
	if ev.MessageID != "" {
		logger = logger.With("message_id", ev.MessageID)
	}
	switch ev.Kind {
	case KindPhoto:
		return c.handlePhoto(ctx, logger, ev)
	case KindText:
		return c.handleText(ctx, logger, ev)
	default:
		logger.Debug("intake_event_dropped", "reason", "unsupported", "kind", ev.Kind)
		return OutcomeDropped, nil
	}
}

func (c *Controller) handlePhoto(ctx context.Context, logger *slog.Logger, ev Event) (Outcome, error) {
	fetchErr := ev.FetchErr
	if fetchErr == nil && len(ev.Image) == 0 {
		fetchErr = fmt.Errorf("%w: empty photo", ErrGatewayDownload)
	}
	if fetchErr != nil {
		logger.Warn("intake_photo_download_error", "error", fetchErr.Error())
		return OutcomeDownloadFailed, c.sendText(ctx, logger, ev.ConversationID, c.messages.DownloadFailed)
	}

	count, batch := c.buffer.AppendAndDrainIfFull(ev.ConversationID, ev.Image, c.threshold)
	if batch == nil {
		logger.Info("intake_photo_buffered", "count", count, "threshold", c.threshold, "bytes", len(ev.Image))
		return OutcomeProgress, c.sendText(ctx, logger, ev.ConversationID, c.messages.progress(count, c.threshold))
	}

	logger.Info("collage_compose_start", "images", len(batch))
	if n, ok := c.gateway.(ComposingNotifier); ok {
		stop := n.NotifyComposing(ctx, ev.ConversationID)
		if stop != nil {
			defer stop()
		}
	}
	res, err := c.safeCompose(batch)
	for _, skipped := range res.Skipped {
		logger.Warn("collage_image_skipped", "index", skipped.Index, "error", skipped.Err.Error())
	}
	if err != nil {
		switch {
		case errors.Is(err, collage.ErrNoValidImages):
			logger.Warn("collage_no_valid_images", "images", len(batch))
		case errors.Is(err, collage.ErrCanvasTooLarge):
			logger.Warn("collage_canvas_too_large", "images", len(batch), "error", err.Error())
		default:
			logger.Error("collage_compose_error", "error", err.Error())
		}
		// The batch was drained before compositing, so a retry starts fresh.
		return OutcomeCollageFailed, c.sendText(ctx, logger, ev.ConversationID, c.messages.collageFailed(c.threshold))
	}
	logger.Info("collage_composed",
		"composed", res.Composed,
		"skipped", len(res.Skipped),
		"width", res.Width,
		"height", res.Height,
		"bytes", len(res.JPEG),
	)
	if err := c.gateway.SendPhoto(ctx, ev.ConversationID, res.JPEG, c.messages.Caption); err != nil {
		logger.Warn("intake_send_photo_error", "error", err.Error())
		return OutcomeCollage, err
	}
	return OutcomeCollage, nil
}

func (c *Controller) handleText(ctx context.Context, logger *slog.Logger, ev Event) (Outcome, error) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return OutcomeDropped, nil
	}
	cmd, rest := splitCommand(text)
	if rest == "" {
		switch normalizeSlashCommand(cmd) {
		case "/reset":
			c.buffer.Clear(ev.ConversationID)
			logger.Info("intake_reset")
			return OutcomeReset, c.sendText(ctx, logger, ev.ConversationID, c.messages.resetDone(c.threshold))
		case "/start", "/help":
			return OutcomeWelcome, c.sendText(ctx, logger, ev.ConversationID, c.messages.welcome(c.threshold))
		}
	}
	return OutcomeInstructions, c.sendText(ctx, logger, ev.ConversationID, c.messages.instructions(c.threshold))
}

func (c *Controller) safeCompose(batch [][]byte) (res collage.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = collage.Result{}
			err = fmt.Errorf("collage compose panic: %v", r)
		}
	}()
	return c.compose(batch, c.collage)
}

func (c *Controller) sendText(ctx context.Context, logger *slog.Logger, conversationID, text string) error {
	if err := c.gateway.SendText(ctx, conversationID, text); err != nil {
		logger.Warn("intake_send_text_error", "error", err.Error())
		return err
	}
	return nil
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
