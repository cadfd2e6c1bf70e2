package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"guardian/internal/config"
	"guardian/internal/db"
	"guardian/internal/models"
	"guardian/internal/settings"
)

func openStore(t *testing.T) *settings.Store {
	t.Helper()
	sqldb, err := db.Open(filepath.Join(t.TempDir(), "guardian.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	if err := db.Migrate(sqldb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := settings.Open(context.Background(), db.NewRepository(sqldb), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}
	return store
}

func TestTelegramFollowsStoredRecord(t *testing.T) {
	store := openStore(t)
	cfg := config.Config{}

	tg := newTelegram(store, cfg)
	if tg.Enabled() {
		t.Fatal("expected disabled without env or record")
	}

	if err := store.Telegram.Commit(context.Background(), models.TelegramSettings{BotToken: "123:abc", ChatID: "-100"}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !tg.Enabled() {
		t.Fatal("expected enabled after the record was saved")
	}

	if err := store.Telegram.Commit(context.Background(), models.TelegramSettings{}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if tg.Enabled() {
		t.Fatal("expected disabled after the record was cleared")
	}
}

func TestTelegramCredentialsFallBackToEnv(t *testing.T) {
	cfg := config.Config{TelegramBotToken: "env-token", TelegramChatID: "env-chat"}

	token, chat := telegramCredentials(models.TelegramSettings{}, cfg)
	if token != "env-token" || chat != "env-chat" {
		t.Fatalf("got %q %q, want env values", token, chat)
	}
	token, chat = telegramCredentials(models.TelegramSettings{BotToken: "rec", ChatID: "42"}, cfg)
	if token != "rec" || chat != "42" {
		t.Fatalf("got %q %q, want record values", token, chat)
	}
}
