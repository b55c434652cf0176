package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/quailyquaily/collagebot/internal/channelruntime/telegram"
	"github.com/quailyquaily/collagebot/internal/configutil"
	"github.com/quailyquaily/collagebot/internal/logutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newTelegramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telegram",
		Short: "Run the collage bot on Telegram or Bale (long polling)",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}

			token := strings.TrimSpace(configutil.FlagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"))
			if token == "" {
				return fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or COLLAGEBOT_TELEGRAM_BOT_TOKEN)")
			}
			allowed, err := parseAllowedChatIDs(configutil.FlagOrViperStringArray(cmd, "telegram-allowed-chat-id", "telegram.allowed_chat_ids"))
			if err != nil {
				return err
			}
			threshold := configutil.FlagOrViperInt(cmd, "collage-threshold", "collage.threshold")
			if threshold < 1 {
				return fmt.Errorf("invalid collage.threshold %d: must be >= 1", threshold)
			}
			collageOpts, err := collageOptionsFromCmd(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return telegram.Run(ctx, telegram.RunOptions{
				BotToken:               token,
				BaseURL:                telegram.ResolveBaseURL(configutil.FlagOrViperString(cmd, "telegram-base-url", "telegram.base_url")),
				AllowedChatIDs:         allowed,
				PollTimeout:            configutil.FlagOrViperDuration(cmd, "telegram-poll-timeout", "telegram.poll_timeout"),
				TaskTimeout:            configutil.FlagOrViperDuration(cmd, "telegram-task-timeout", "telegram.task_timeout"),
				MaxConcurrency:         configutil.FlagOrViperInt(cmd, "telegram-max-concurrency", "telegram.max_concurrency"),
				ChatQueueSize:          viper.GetInt("telegram.chat_queue_size"),
				WorkerIdleTimeout:      viper.GetDuration("telegram.worker_idle_timeout"),
				MaxPhotoBytes:          configutil.FlagOrViperInt64(cmd, "telegram-max-photo-bytes", "telegram.max_photo_bytes"),
				FileCacheDir:           configutil.FlagOrViperString(cmd, "file-cache-dir", "file_cache_dir"),
				FileCacheMaxAge:        viper.GetDuration("file_cache.max_age"),
				FileCacheMaxFiles:      viper.GetInt("file_cache.max_files"),
				FileCacheMaxTotalBytes: viper.GetInt64("file_cache.max_total_bytes"),
				Threshold:              threshold,
				Collage:                collageOpts,
				Messages:               messagesFromViper(),
				BufferIdleTTL:          viper.GetDuration("buffer.idle_ttl"),
				BufferMaxConversations: viper.GetInt("buffer.max_conversations"),
				SweepInterval:          viper.GetDuration("telegram.buffer_sweep_interval"),
				SendRetryAttempts:      viper.GetInt("telegram.send_retry_attempts"),
				SendRetryDelay:         viper.GetDuration("telegram.send_retry_delay"),
				ShutdownTimeout:        viper.GetDuration("telegram.shutdown_timeout"),
				Logger:                 logger,
			})
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().String("telegram-base-url", "telegram", "Bot API endpoint: telegram, bale, or a URL.")
	cmd.Flags().StringArray("telegram-allowed-chat-id", nil, "Allowed chat id(s). If empty, allows all.")
	cmd.Flags().Duration("telegram-poll-timeout", 30*time.Second, "Long polling timeout for getUpdates.")
	cmd.Flags().Duration("telegram-task-timeout", 2*time.Minute, "Per-message timeout for download, collage and reply.")
	cmd.Flags().Int("telegram-max-concurrency", 3, "Max number of chats processed concurrently.")
	cmd.Flags().Int64("telegram-max-photo-bytes", int64(20*1024*1024), "Largest photo download accepted, in bytes.")
	cmd.Flags().String("file-cache-dir", "~/.cache/collagebot", "Private directory for downloaded photos.")
	cmd.Flags().Int("collage-threshold", 3, "Photos collected before a collage is built.")
	addCollageFlags(cmd)

	return cmd
}

func parseAllowedChatIDs(items []string) ([]int64, error) {
	var out []int64
	for _, s := range configutil.NonEmptyStrings(items) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram.allowed_chat_ids entry %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}
