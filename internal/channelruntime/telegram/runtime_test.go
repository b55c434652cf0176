package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quailyquaily/collagebot/intake"
	"github.com/quailyquaily/collagebot/internal/channelruntime/worker"
	"github.com/quailyquaily/collagebot/internal/photobuffer"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type fakeBotAPI struct {
	t      *testing.T
	files  map[string][]byte
	photos chan []byte
	// photoStarted and photoGate, when set, hold a sendPhoto upload open.
	photoStarted chan struct{}
	photoGate    chan struct{}

	mu       sync.Mutex
	served   bool
	updates  string
	messages []string
	chats    []int64
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"username":"collage_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/getUpdates"):
		f.mu.Lock()
		first := !f.served
		f.served = true
		f.mu.Unlock()
		if first {
			_, _ = w.Write([]byte(f.updates))
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	case strings.HasSuffix(r.URL.Path, "/getFile"):
		id := r.URL.Query().Get("file_id")
		if _, ok := f.files[id]; !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: invalid file_id"}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"file_id":%q,"file_path":"photos/%s.png"}}`, id, id)
	case strings.HasPrefix(r.URL.Path, "/file/botTOKEN/photos/"):
		id := strings.TrimSuffix(filepath.Base(r.URL.Path), ".png")
		_, _ = w.Write(f.files[id])
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		raw, _ := io.ReadAll(r.Body)
		var req telegramSendMessageRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			f.t.Errorf("decode sendMessage: %v", err)
		}
		f.mu.Lock()
		f.messages = append(f.messages, req.Text)
		f.chats = append(f.chats, req.ChatID)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	case strings.HasSuffix(r.URL.Path, "/sendChatAction"):
		_, _ = w.Write([]byte(`{"ok":true}`))
	case strings.HasSuffix(r.URL.Path, "/sendPhoto"):
		file, _, err := r.FormFile("photo")
		if err != nil {
			f.t.Errorf("sendPhoto form file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		_ = file.Close()
		if f.photoStarted != nil {
			close(f.photoStarted)
			<-f.photoGate
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
		f.photos <- data
	default:
		f.t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeBotAPI) sentMessages() ([]string, []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...), append([]int64(nil), f.chats...)
}

func TestRun_ComposesCollageAfterThreePhotos(t *testing.T) {
	updates := `{"ok":true,"result":[
		{"update_id":10,"message":{"message_id":1,"chat":{"id":5,"type":"private"},"text":"hello"}},
		{"update_id":11,"message":{"message_id":2,"chat":{"id":99,"type":"private"},"photo":[{"file_id":"red","width":100,"height":200}]}},
		{"update_id":12,"message":{"message_id":3,"chat":{"id":99,"type":"private"},"photo":[{"file_id":"blue","width":300,"height":300}]}},
		{"update_id":13,"message":{"message_id":4,"chat":{"id":99,"type":"private"},"from":{"id":2,"is_bot":true},"text":"/reset"}},
		{"update_id":14,"message":{"message_id":5,"chat":{"id":99,"type":"private"},"photo":[{"file_id":"bad","width":10,"height":10}]}}
	]}`
	fake := &fakeBotAPI{
		t: t,
		files: map[string][]byte{
			"red":  solidPNG(t, 100, 200, color.RGBA{R: 255, A: 255}),
			"blue": solidPNG(t, 300, 300, color.RGBA{B: 255, A: 255}),
			"bad":  []byte("definitely not an image"),
		},
		photos:  make(chan []byte, 1),
		updates: updates,
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cacheDir := filepath.Join(t.TempDir(), "cache")
	var outboundMu sync.Mutex
	var outbound []OutboundEvent
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, RunOptions{
			BotToken:       "TOKEN",
			BaseURL:        srv.URL,
			AllowedChatIDs: []int64{99},
			PollTimeout:    time.Second,
			FileCacheDir:   cacheDir,
			Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
			HTTPClient:     srv.Client(),
			Hooks: Hooks{
				OnOutbound: func(ev OutboundEvent) {
					outboundMu.Lock()
					outbound = append(outbound, ev)
					outboundMu.Unlock()
				},
			},
		})
	}()

	var collageJPEG []byte
	select {
	case collageJPEG = <-fake.photos:
	case err := <-done:
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for collage")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(collageJPEG))
	if err != nil {
		t.Fatalf("decode collage: %v", err)
	}
	if format != "jpeg" || cfg.Width != 732 || cfg.Height != 2148 {
		t.Fatalf("collage = %s %dx%d, want jpeg 732x2148", format, cfg.Width, cfg.Height)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Run() did not stop after cancel")
	}

	msgs, chats := fake.sentMessages()
	want := []string{
		intake.DefaultMessages().Progress,
		intake.DefaultMessages().Progress,
	}
	if len(msgs) != len(want) {
		t.Fatalf("sent messages = %#v, want 2 progress replies", msgs)
	}
	if msgs[0] != fmt.Sprintf(want[0], 1, 3) || msgs[1] != fmt.Sprintf(want[1], 2, 3) {
		t.Fatalf("sent messages = %#v", msgs)
	}
	for _, id := range chats {
		if id != 99 {
			t.Fatalf("message sent to disallowed chat %d", id)
		}
	}

	outboundMu.Lock()
	defer outboundMu.Unlock()
	var photos int
	for _, ev := range outbound {
		if ev.Kind == "photo" {
			photos++
			if ev.Text != intake.DefaultMessages().Caption {
				t.Fatalf("caption = %q", ev.Text)
			}
		}
	}
	if photos != 1 {
		t.Fatalf("outbound photos = %d, want 1", photos)
	}
}

func TestRun_RequiresToken(t *testing.T) {
	if err := Run(context.Background(), RunOptions{}); err == nil {
		t.Fatalf("expected missing token error")
	}
}

func TestJobFromMessage(t *testing.T) {
	photo := jobFromMessage(&telegramMessage{
		MessageID: 3,
		Chat:      &telegramChat{ID: 9, Type: "Private"},
		Caption:   "look",
		Photo:     []telegramPhotoSize{{FileID: "p", Width: 1, Height: 1}},
	})
	if photo.Kind != intake.KindPhoto || photo.Photo.FileID != "p" || photo.ChatType != "private" {
		t.Fatalf("photo job = %+v", photo)
	}
	text := jobFromMessage(&telegramMessage{Chat: &telegramChat{ID: 9}, Text: "  /reset "})
	if text.Kind != intake.KindText || text.Text != "/reset" {
		t.Fatalf("text job = %+v", text)
	}
	other := jobFromMessage(&telegramMessage{Chat: &telegramChat{ID: 9}, Caption: "sticker"})
	if other.Kind != intake.KindOther {
		t.Fatalf("other job = %+v", other)
	}
}

func TestRun_StopWaitsForInflightUpload(t *testing.T) {
	updates := `{"ok":true,"result":[
		{"update_id":20,"message":{"message_id":1,"chat":{"id":7,"type":"private"},"photo":[{"file_id":"a","width":10,"height":10}]}},
		{"update_id":21,"message":{"message_id":2,"chat":{"id":7,"type":"private"},"photo":[{"file_id":"b","width":10,"height":10}]}},
		{"update_id":22,"message":{"message_id":3,"chat":{"id":7,"type":"private"},"photo":[{"file_id":"c","width":10,"height":10}]}}
	]}`
	fake := &fakeBotAPI{
		t: t,
		files: map[string][]byte{
			"a": solidPNG(t, 10, 10, color.Black),
			"b": solidPNG(t, 10, 10, color.White),
			"c": solidPNG(t, 10, 10, color.Black),
		},
		photos:       make(chan []byte, 1),
		photoStarted: make(chan struct{}),
		photoGate:    make(chan struct{}),
		updates:      updates,
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cacheDir := filepath.Join(t.TempDir(), "cache")
	var delivered sync.WaitGroup
	delivered.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, RunOptions{
			BotToken:        "TOKEN",
			BaseURL:         srv.URL,
			PollTimeout:     time.Second,
			FileCacheDir:    cacheDir,
			ShutdownTimeout: 10 * time.Second,
			Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
			HTTPClient:      srv.Client(),
			Hooks: Hooks{
				OnOutbound: func(ev OutboundEvent) {
					if ev.Kind == "photo" {
						delivered.Done()
					}
				},
			},
		})
	}()

	select {
	case <-fake.photoStarted:
	case err := <-done:
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for upload")
	}
	cancel()
	select {
	case err := <-done:
		t.Fatalf("Run() returned during an upload: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	close(fake.photoGate)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Run() did not stop after the upload finished")
	}
	// Run returned, so the outbound hook for the finished upload already ran.
	delivered.Wait()
	if len(fake.photos) != 1 {
		t.Fatalf("collage uploads = %d, want 1", len(fake.photos))
	}
}

func TestRejectPhoto_RepliesAndDoesNotBuffer(t *testing.T) {
	fake := &fakeBotAPI{t: t}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := newTelegramAPI(srv.Client(), srv.URL, "TOKEN")
	buffer := photobuffer.New(photobuffer.Options{})
	ctrl, err := intake.New(intake.Options{
		Buffer:  buffer,
		Gateway: newGateway(api, logger, Hooks{}, 1, time.Millisecond),
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("intake.New() error = %v", err)
	}
	h := &jobHandler{ctrl: ctrl, logger: logger, taskTimeout: 5 * time.Second}
	h.rejectPhoto(context.Background(), telegramJob{ChatID: 12, MessageID: 4, Kind: intake.KindPhoto}, worker.ErrQueueFull)

	msgs, chats := fake.sentMessages()
	if len(msgs) != 1 || chats[0] != 12 {
		t.Fatalf("sent = %#v to %v, want one reply to chat 12", msgs, chats)
	}
	if msgs[0] != intake.DefaultMessages().DownloadFailed {
		t.Fatalf("reply = %q", msgs[0])
	}
	if n := buffer.Size("tg:12"); n != 0 {
		t.Fatalf("buffer size = %d, want 0", n)
	}
}
