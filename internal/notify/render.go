// Package notify renders issues into chat messages and dispatches
// them through the messaging transport.
package notify

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/amats/tg-redmine/internal/model"
)

// markupRe matches any embedded tag in tracker comment text.
var markupRe = regexp.MustCompile(`<.*?>`)

// StripMarkup removes embedded markup from tracker text. Tags are
// stripped, not escaped: the surviving text is rendered as-is.
func StripMarkup(s string) string {
	return markupRe.ReplaceAllString(s, "")
}

const timeLayout = "02.01.2006 15:04"

// Renderer formats issues as Telegram HTML payloads.
type Renderer struct {
	// IssueBaseURL is the public URL prefix for issue links,
	// e.g. https://sd.example.com/issues.
	IssueBaseURL string
}

// Render produces the notification text for an issue addressed to the
// given users. The trailing roster mentions every addressed login.
func (r *Renderer) Render(issue model.Issue, users []model.User) string {
	var msg strings.Builder

	msg.WriteString(r.header(issue))
	msg.WriteString(priorityLine(issue))
	fmt.Fprintf(&msg, "\n \U0001F3D8 <b>Корпус:</b> #%s", orUnknown(issue.Corpus, "Неизвестен"))
	fmt.Fprintf(&msg, "\n <b>Номер комнаты:</b> %s", orUnknown(issue.Room, "Неизвестен"))
	fmt.Fprintf(&msg, "\n <b>Тема:</b> %s \n", orUnknown(issue.Subject, "Неизвестно"))
	msg.WriteString(statusLine(issue))
	fmt.Fprintf(&msg, "\n ✍️ <b>Автор:</b> %s", orUnknown(issue.Author, "Неизвестно"))
	fmt.Fprintf(&msg, "\n \U0001F4C6 <b>Создана:</b> %s", formatTime(issue.CreatedOn))
	fmt.Fprintf(&msg, "\n \U0001F4C6 <b>Обновлена:</b> %s", formatTime(issue.UpdatedOn))

	if issue.Comment != "" {
		msg.WriteString("\n\n \U0001F4DD <b>Последний комментарий</b>")
		fmt.Fprintf(&msg, "\n <b>Автор:</b> %s \n %s", issue.Commentator, issue.Comment)
	}

	msg.WriteString("\n\n")
	for _, u := range users {
		msg.WriteString(orUnknown(u.Login, "Неизвестно"))
		msg.WriteString(" ")
	}

	return msg.String()
}

func (r *Renderer) header(issue model.Issue) string {
	return fmt.Sprintf(`<b>Задача:</b> <a href="%s/%d">#%d</a>`,
		strings.TrimRight(r.IssueBaseURL, "/"), issue.ID, issue.ID)
}

// priorityLine decorates the two escalated priorities; anything else,
// including values the tracker adds later, gets the generic label.
func priorityLine(issue model.Issue) string {
	switch issue.Priority {
	case "Критический":
		return "\n ‼️ <b>Приоритет:</b> Критический"
	case "Высокий":
		return "\n ❗ <b>Приоритет:</b> Высокий"
	default:
		return fmt.Sprintf("\n <b>Приоритет:</b> %s", orUnknown(issue.Priority, "Неизвестен"))
	}
}

// statusLine decorates the known workflow states; unrecognized status
// strings are labeled generically, never dropped.
func statusLine(issue model.Issue) string {
	switch issue.Status {
	case "Новая":
		return "\n \U0001F449 <b>Статус:</b> Новая"
	case "В работе":
		return "\n \U0001F44D <b>Статус:</b> В работе"
	case "Решена":
		return "\n ✅ <b>Статус:</b> Решена"
	case "Закрыта":
		return "\n ✅ <b>Статус:</b> Закрыта"
	case "В ожидании":
		return "\n \U0001F914 <b>Статус:</b> В ожидании"
	default:
		return fmt.Sprintf("\n <b>Статус:</b> %s", orUnknown(issue.Status, "Неизвестно"))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "Неизвестно"
	}
	return t.Format(timeLayout)
}

func orUnknown(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
