package main

import (
	"fmt"
	"strings"

	"github.com/quailyquaily/collagebot/collage"
	"github.com/quailyquaily/collagebot/intake"
	"github.com/quailyquaily/collagebot/internal/configutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func addCollageFlags(cmd *cobra.Command) {
	cmd.Flags().Int("collage-width", collage.DefaultWidth, "Width every photo is resized to, in pixels.")
	cmd.Flags().Int("collage-margin", collage.DefaultMargin, "White margin around and between photos, in pixels.")
	cmd.Flags().Int("collage-quality", collage.DefaultQuality, "JPEG quality (1-100).")
	cmd.Flags().String("collage-background", "#ffffff", "Background color as #rrggbb.")
	cmd.Flags().String("collage-resample", collage.DefaultResample, "Resampling kernel: catmullrom|bilinear|approxbilinear|nearest.")
	cmd.Flags().Int64("collage-max-source-pixels", collage.DefaultMaxSourcePixels, "Reject source photos larger than this many pixels (0 disables).")
	cmd.Flags().Int64("collage-max-canvas-pixels", collage.DefaultMaxCanvasPixels, "Largest collage canvas, in pixels (0 disables).")
}

func collageOptionsFromCmd(cmd *cobra.Command) (collage.Options, error) {
	opts := collage.DefaultOptions()
	opts.Width = configutil.FlagOrViperInt(cmd, "collage-width", "collage.width")
	opts.Margin = configutil.FlagOrViperInt(cmd, "collage-margin", "collage.margin")
	opts.Quality = configutil.FlagOrViperInt(cmd, "collage-quality", "collage.quality")
	opts.Resample = strings.TrimSpace(configutil.FlagOrViperString(cmd, "collage-resample", "collage.resample"))
	opts.MaxSourcePixels = configutil.FlagOrViperInt64(cmd, "collage-max-source-pixels", "collage.max_source_pixels")
	opts.MaxCanvasPixels = configutil.FlagOrViperInt64(cmd, "collage-max-canvas-pixels", "collage.max_canvas_pixels")
	if bg := strings.TrimSpace(configutil.FlagOrViperString(cmd, "collage-background", "collage.background")); bg != "" {
		c, err := collage.ParseColor(bg)
		if err != nil {
			return collage.Options{}, fmt.Errorf("invalid collage.background: %w", err)
		}
		opts.Background = c
	}
	if err := opts.Validate(); err != nil {
		return collage.Options{}, err
	}
	return opts, nil
}

func messagesFromViper() intake.Messages {
	return intake.Messages{
		Progress:       strings.TrimSpace(viper.GetString("messages.progress")),
		Caption:        strings.TrimSpace(viper.GetString("messages.caption")),
		CollageFailed:  strings.TrimSpace(viper.GetString("messages.collage_failed")),
		DownloadFailed: strings.TrimSpace(viper.GetString("messages.download_failed")),
		ResetDone:      strings.TrimSpace(viper.GetString("messages.reset_done")),
		Instructions:   strings.TrimSpace(viper.GetString("messages.instructions")),
		Welcome:        strings.TrimSpace(viper.GetString("messages.welcome")),
	}
}
