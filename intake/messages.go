package intake

import "fmt"

// Messages holds the user-facing replies. Empty fields fall back to defaults.
type Messages struct {
	Progress       string // format: received, threshold
	Caption        string
	CollageFailed  string // format: threshold
	DownloadFailed string
	ResetDone      string // format: threshold
	Instructions   string // format: threshold
	Welcome        string // format: threshold
}

func DefaultMessages() Messages {
	return Messages{
		Progress:       "Photo %d/%d received ✅",
		Caption:        "Here is your vertical collage 🎨",
		CollageFailed:  "Sorry, I couldn't build a collage from those photos. Send %d photos again.",
		DownloadFailed: "Sorry, I couldn't download that photo. Please send it again.",
		ResetDone:      "Reset done. Send %d photos again.",
		Instructions:   "Please send me %d photos, one by one.",
		Welcome:        "Hi! Send me %d photos, one by one, and I'll stack them into a vertical collage. Send /reset to start over.",
	}
}

func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	if m.Progress == "" {
		m.Progress = d.Progress
	}
	if m.Caption == "" {
		m.Caption = d.Caption
	}
	if m.CollageFailed == "" {
		m.CollageFailed = d.CollageFailed
	}
	if m.DownloadFailed == "" {
		m.DownloadFailed = d.DownloadFailed
	}
	if m.ResetDone == "" {
		m.ResetDone = d.ResetDone
	}
	if m.Instructions == "" {
		m.Instructions = d.Instructions
	}
	if m.Welcome == "" {
		m.Welcome = d.Welcome
	}
	return m
}

func (m Messages) progress(n, threshold int) string {
	return fmt.Sprintf(m.Progress, n, threshold)
}

func (m Messages) collageFailed(threshold int) string {
	return fmt.Sprintf(m.CollageFailed, threshold)
}

func (m Messages) resetDone(threshold int) string {
	return fmt.Sprintf(m.ResetDone, threshold)
}

func (m Messages) instructions(threshold int) string {
	return fmt.Sprintf(m.Instructions, threshold)
}

func (m Messages) welcome(threshold int) string {
	return fmt.Sprintf(m.Welcome, threshold)
}
