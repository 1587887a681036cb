package bot

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/amats/tg-redmine/internal/model"
)

// csvSeparator matches the format the operators' spreadsheets expect.
const csvSeparator = ';'

// UsersCSV renders the user list as a semicolon-separated file.
func UsersCSV(users []model.User) *bytes.Buffer {
	var buf bytes.Buffer
	writeRow(&buf, "Login", "ChatID", "TelegramUserID", "ThreadID", "IsAdmin")
	for _, u := range users {
		writeRow(&buf,
			u.Login,
			strconv.FormatInt(u.ChatID, 10),
			strconv.FormatInt(u.TelegramUserID, 10),
			strconv.Itoa(u.ThreadID),
			strconv.FormatBool(u.IsAdmin),
		)
	}
	return &buf
}

// MessagesCSV renders the notification records as a semicolon-separated file.
func MessagesCSV(recs []model.MessageRecord) *bytes.Buffer {
	var buf bytes.Buffer
	writeRow(&buf, "ID", "IssueID", "MessageID", "ChatID", "CreatedOn", "UpdatedOn")
	for _, rec := range recs {
		writeRow(&buf,
			strconv.FormatInt(rec.ID, 10),
			strconv.FormatInt(rec.IssueID, 10),
			strconv.Itoa(rec.MessageID),
			strconv.FormatInt(rec.ChatID, 10),
			rec.CreatedOn.Format("2006-01-02 15:04:05"),
			rec.UpdatedOn.Format("2006-01-02 15:04:05"),
		)
	}
	return &buf
}

func writeRow(buf *bytes.Buffer, fields ...string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(csvSeparator)
		}
		buf.WriteString(f)
	}
	buf.WriteByte('\n')
}

// ZipLogs packs every readable file in the log directory into an
// in-memory zip archive. Files that cannot be opened (for example the
// log currently being written) are skipped.
func ZipLogs(dir string) (*bytes.Buffer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading log directory %s: %w", dir, err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := addFileToZip(zw, filepath.Join(dir, entry.Name()), entry.Name()); err != nil {
			continue
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing log archive: %w", err)
	}
	return &buf, nil
}

func addFileToZip(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
