package configutil

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestFlagOrViperPrefersChangedFlag(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("collage.width", 500)
	viper.Set("telegram.bot_token", "from-viper")
	viper.Set("telegram.poll_timeout", 10*time.Second)

	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().Int("width", 700, "")
	cmd.Flags().String("telegram-bot-token", "", "")
	cmd.Flags().Duration("telegram-poll-timeout", 30*time.Second, "")

	if got := FlagOrViperInt(cmd, "width", "collage.width"); got != 500 {
		t.Fatalf("unchanged flag should fall back to viper, got %d", got)
	}
	if err := cmd.Flags().Set("width", "640"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := FlagOrViperInt(cmd, "width", "collage.width"); got != 640 {
		t.Fatalf("changed flag should win, got %d", got)
	}
	if got := FlagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"); got != "from-viper" {
		t.Fatalf("FlagOrViperString() = %q", got)
	}
	if got := FlagOrViperDuration(cmd, "telegram-poll-timeout", "telegram.poll_timeout"); got != 10*time.Second {
		t.Fatalf("FlagOrViperDuration() = %v", got)
	}
	if got := FlagOrViperInt(nil, "width", "collage.width"); got != 500 {
		t.Fatalf("nil cmd should use viper, got %d", got)
	}
}

func TestNonEmptyStrings(t *testing.T) {
	got := NonEmptyStrings([]string{" a ", "", "  ", "b"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("NonEmptyStrings() = %q", got)
	}
}
