package main

import (
	"time"

	"github.com/quailyquaily/collagebot/collage"
	"github.com/quailyquaily/collagebot/intake"
	"github.com/quailyquaily/collagebot/internal/photobuffer"
	"github.com/spf13/viper"
)

func initViperDefaults() {
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
	viper.SetDefault("trace", false)

	// Collage
	viper.SetDefault("collage.threshold", intake.DefaultThreshold)
	viper.SetDefault("collage.width", collage.DefaultWidth)
	viper.SetDefault("collage.margin", collage.DefaultMargin)
	viper.SetDefault("collage.quality", collage.DefaultQuality)
	viper.SetDefault("collage.background", "#ffffff")
	viper.SetDefault("collage.resample", collage.DefaultResample)
	viper.SetDefault("collage.max_source_pixels", collage.DefaultMaxSourcePixels)
	viper.SetDefault("collage.max_canvas_pixels", collage.DefaultMaxCanvasPixels)

	// Conversation buffers
	viper.SetDefault("buffer.idle_ttl", photobuffer.DefaultIdleTTL)
	viper.SetDefault("buffer.max_conversations", photobuffer.DefaultMaxConversations)

	// Global
	viper.SetDefault("file_cache_dir", "~/.cache/collagebot")
	viper.SetDefault("file_cache.max_age", 24*time.Hour)
	viper.SetDefault("file_cache.max_files", 1000)
	viper.SetDefault("file_cache.max_total_bytes", int64(512*1024*1024))

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	// "telegram", "bale" or a full Bot API URL.
	viper.SetDefault("telegram.base_url", "telegram")
	viper.SetDefault("telegram.allowed_chat_ids", []string{})
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.task_timeout", 2*time.Minute)
	viper.SetDefault("telegram.max_concurrency", 3)
	viper.SetDefault("telegram.chat_queue_size", 16)
	viper.SetDefault("telegram.worker_idle_timeout", 10*time.Minute)
	viper.SetDefault("telegram.max_photo_bytes", int64(20*1024*1024))
	viper.SetDefault("telegram.buffer_sweep_interval", 10*time.Minute)
	viper.SetDefault("telegram.send_retry_attempts", 2)
	viper.SetDefault("telegram.send_retry_delay", 2*time.Second)
	viper.SetDefault("telegram.shutdown_timeout", 30*time.Second)

	// Replies; empty keeps the built-in text.
	viper.SetDefault("messages.progress", "")
	viper.SetDefault("messages.caption", "")
	viper.SetDefault("messages.collage_failed", "")
	viper.SetDefault("messages.download_failed", "")
	viper.SetDefault("messages.reset_done", "")
	viper.SetDefault("messages.instructions", "")
	viper.SetDefault("messages.welcome", "")
}
