package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quailyquaily/collagebot/collage"
	"github.com/quailyquaily/collagebot/intake"
	"github.com/quailyquaily/collagebot/internal/fsstore"
	"github.com/quailyquaily/collagebot/internal/pathutil"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type initConfigFile struct {
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Collage struct {
		Threshold       int    `yaml:"threshold"`
		Width           int    `yaml:"width"`
		Margin          int    `yaml:"margin"`
		Quality         int    `yaml:"quality"`
		Background      string `yaml:"background"`
		Resample        string `yaml:"resample"`
		MaxCanvasPixels int64  `yaml:"max_canvas_pixels"`
	} `yaml:"collage"`
	Telegram struct {
		BotToken       string   `yaml:"bot_token"`
		BaseURL        string   `yaml:"base_url"`
		AllowedChatIDs []string `yaml:"allowed_chat_ids"`
		PollTimeout    string   `yaml:"poll_timeout"`
		MaxConcurrency int      `yaml:"max_concurrency"`
	} `yaml:"telegram"`
	FileCacheDir string `yaml:"file_cache_dir"`
}

func defaultInitConfig(dir string) initConfigFile {
	var cfg initConfigFile
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Collage.Threshold = intake.DefaultThreshold
	cfg.Collage.Width = collage.DefaultWidth
	cfg.Collage.Margin = collage.DefaultMargin
	cfg.Collage.Quality = collage.DefaultQuality
	cfg.Collage.Background = "#ffffff"
	cfg.Collage.Resample = collage.DefaultResample
	cfg.Collage.MaxCanvasPixels = collage.DefaultMaxCanvasPixels
	cfg.Telegram.BaseURL = "telegram"
	cfg.Telegram.AllowedChatIDs = []string{}
	cfg.Telegram.PollTimeout = "30s"
	cfg.Telegram.MaxConcurrency = 3
	cfg.FileCacheDir = filepath.Join(dir, "cache")
	return cfg
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter config.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "~/.collagebot/"
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = args[0]
			}
			dir = pathutil.ExpandHomePath(dir)
			if strings.TrimSpace(dir) == "" {
				return fmt.Errorf("invalid dir")
			}
			dir = filepath.Clean(dir)

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			cfgPath := filepath.Join(dir, "config.yaml")
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}

			body, err := yaml.Marshal(defaultInitConfig(dir))
			if err != nil {
				return err
			}
			if err := fsstore.WriteFileAtomic(cfgPath, body, fsstore.FileOptions{DirPerm: 0o755, FilePerm: 0o600}); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", cfgPath)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "next: set telegram.bot_token (and telegram.base_url: bale for a Bale bot), then run: collagebot telegram --config %s\n", cfgPath)
			return nil
		},
	}
}
