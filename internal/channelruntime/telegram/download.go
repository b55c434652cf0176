package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quailyquaily/collagebot/intake"
	"github.com/quailyquaily/collagebot/internal/filecache"
)

type photoRef struct {
	FileID   string
	Kind     string // photo|document
	FileSize int64
}

// photoFromMessage picks the highest resolution photo size, or an image
// sent as a document.
func photoFromMessage(msg *telegramMessage) (photoRef, bool) {
	if msg == nil {
		return photoRef{}, false
	}
	var best telegramPhotoSize
	bestArea := -1
	for _, p := range msg.Photo {
		if strings.TrimSpace(p.FileID) == "" {
			continue
		}
		// Telegram lists sizes ascending; ties keep the later entry.
		if area := p.Width * p.Height; area >= bestArea {
			best = p
			bestArea = area
		}
	}
	if best.FileID != "" {
		return photoRef{FileID: strings.TrimSpace(best.FileID), Kind: "photo", FileSize: best.FileSize}, true
	}
	if doc := msg.Document; doc != nil && strings.TrimSpace(doc.FileID) != "" {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(doc.MimeType)), "image/") {
			return photoRef{FileID: strings.TrimSpace(doc.FileID), Kind: "document", FileSize: doc.FileSize}, true
		}
	}
	return photoRef{}, false
}

type photoDownloader struct {
	api      *telegramAPI
	cache    *filecache.Cache
	maxBytes int64
}

// download fetches the photo through the file cache and returns its bytes.
// Errors wrap intake.ErrGatewayDownload.
func (d *photoDownloader) download(ctx context.Context, chatID, messageID int64, ref photoRef) ([]byte, error) {
	data, err := d.fetch(ctx, chatID, messageID, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", intake.ErrGatewayDownload, err)
	}
	return data, nil
}

func (d *photoDownloader) fetch(ctx context.Context, chatID, messageID int64, ref photoRef) ([]byte, error) {
	if d.maxBytes > 0 && ref.FileSize > d.maxBytes {
		return nil, fmt.Errorf("telegram file too large (%d > %d bytes)", ref.FileSize, d.maxBytes)
	}
	f, err := d.api.getFile(ctx, ref.FileID)
	if err != nil {
		return nil, err
	}
	chatDir, err := d.cache.ChildDir(fmt.Sprintf("chat_%d", chatID))
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(chatDir, fmt.Sprintf("tg_%d_*%s", messageID, safeExt(f.FilePath)))
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	if _, _, err := d.api.downloadFileTo(ctx, f.FilePath, tmpPath, d.maxBytes); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("telegram file is empty")
	}
	return data, nil
}

func safeExt(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == "" || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
