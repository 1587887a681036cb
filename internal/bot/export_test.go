package bot

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amats/tg-redmine/internal/model"
)

func TestUsersCSV(t *testing.T) {
	buf := UsersCSV([]model.User{
		{Login: "@a", ChatID: -100, TelegramUserID: 42, ThreadID: 5, IsAdmin: true},
		{Login: "@b"},
	})

	want := "Login;ChatID;TelegramUserID;ThreadID;IsAdmin\n" +
		"@a;-100;42;5;true\n" +
		"@b;0;0;0;false\n"
	assert.Equal(t, want, buf.String())
}

func TestMessagesCSV(t *testing.T) {
	ts := time.Date(2026, 2, 3, 9, 30, 0, 0, time.UTC)
	buf := MessagesCSV([]model.MessageRecord{
		{ID: 1, IssueID: 123, MessageID: 77, ChatID: -100, CreatedOn: ts, UpdatedOn: ts},
	})

	want := "ID;IssueID;MessageID;ChatID;CreatedOn;UpdatedOn\n" +
		"1;123;77;-100;2026-02-03 09:30:00;2026-02-03 09:30:00\n"
	assert.Equal(t, want, buf.String())
}

func TestZipLogs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.log"), []byte("first\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.log"), []byte("second\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	buf, err := ZipLogs(dir)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"a.log", "b.log"}, names)
}

func TestZipLogsMissingDir(t *testing.T) {
	_, err := ZipLogs(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
