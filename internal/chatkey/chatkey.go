package chatkey

import (
	"fmt"
	"strconv"
	"strings"
)

type Channel string

const ChannelTelegram Channel = "telegram"

func Build(channel Channel, id string) (string, error) {
	if !isValidChannel(channel) {
		return "", fmt.Errorf("channel is invalid")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("conversation id is required")
	}
	if strings.Contains(id, " ") {
		return "", fmt.Errorf("conversation id must not contain spaces")
	}
	return fmt.Sprintf("%s:%s", prefix(channel), id), nil
}

func Telegram(chatID int64) (string, error) {
	if chatID == 0 {
		return "", fmt.Errorf("chat_id is required")
	}
	return Build(ChannelTelegram, strconv.FormatInt(chatID, 10))
}

// TelegramChatID is the inverse of Telegram.
func TelegramChatID(key string) (int64, error) {
	key = strings.TrimSpace(key)
	p := prefix(ChannelTelegram) + ":"
	if !strings.HasPrefix(key, p) {
		return 0, fmt.Errorf("conversation key is not a telegram chat: %q", key)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(key, p), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("conversation key has invalid chat id: %q", key)
	}
	return id, nil
}

func isValidChannel(channel Channel) bool {
	switch channel {
	case ChannelTelegram:
		return true
	default:
		return false
	}
}

func prefix(channel Channel) string {
	switch channel {
	case ChannelTelegram:
		return "tg"
	default:
		return ""
	}
}
