package report

import (
	"errors"
	"fmt"
	"html"
	"slices"
	"strings"
	"time"

	"GuestReportBot/internal/models/domain"
)

const phoneLength = 11

// ErrIncomplete is returned when a session lacks one of the text fields.
var ErrIncomplete = errors.New("report is incomplete")

// ValidPhone reports whether s is an 11 digit number starting with 7.
func ValidPhone(s string) bool {
	if len(s) != phoneLength || s[0] != '7' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// RenderText renders the report as an HTML post. Every user supplied field
// is escaped.
func RenderText(r domain.Report) string {
	var sb strings.Builder
	sb.WriteString("⚠️ <b>Нежелательный гость</b>\n\n")
	fmt.Fprintf(&sb, "<b>Страна:</b> %s\n", html.EscapeString(r.Country))
	fmt.Fprintf(&sb, "<b>Город:</b> %s\n", html.EscapeString(r.City))
	fmt.Fprintf(&sb, "<b>ФИО гостя:</b> %s\n", html.EscapeString(r.GuestName))
	fmt.Fprintf(&sb, "<b>Телефон:</b> %s\n\n", html.EscapeString(r.Phone))
	fmt.Fprintf(&sb, "<b>Описание ситуации:</b>\n%s", html.EscapeString(r.Description))
	return sb.String()
}

// Finalize builds a pending report from a completed session. Photos collected
// in the session are dropped unless withPhotos is set.
func Finalize(
	sess *domain.Session,
	submitter domain.Submitter,
	withPhotos bool,
	id string,
	now time.Time,
) (domain.Report, error) {
	op := "report.Finalize"

	if sess == nil {
		return domain.Report{}, fmt.Errorf("%s: %w", op, ErrIncomplete)
	}
	for name, v := range map[string]string{
		"country":     sess.Country,
		"city":        sess.City,
		"guest_name":  sess.GuestName,
		"phone":       sess.Phone,
		"description": sess.Description,
	} {
		if v == "" {
			return domain.Report{}, fmt.Errorf("%s: %s: %w", op, name, ErrIncomplete)
		}
	}

	var photos []string
	if withPhotos && len(sess.PhotoIDs) > 0 {
		photos = slices.Clone(sess.PhotoIDs)
	}

	return domain.Report{
		ID:          id,
		Submitter:   submitter,
		Country:     sess.Country,
		City:        sess.City,
		GuestName:   sess.GuestName,
		Phone:       sess.Phone,
		Description: sess.Description,
		PhotoIDs:    photos,
		CreatedAt:   now,
	}, nil
}
