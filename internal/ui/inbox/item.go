package inbox

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/quanghm/mailcheck/internal/model"
	"github.com/quanghm/mailcheck/internal/theme"
)

// MessageItem wraps a model.MessageSummary so it can be used in a
// bubbles/list. AccountName is the display label of the owning account.
type MessageItem struct {
	Message     model.MessageSummary
	AccountName string
}

// FilterValue returns the string used for fuzzy filtering.
func (i MessageItem) FilterValue() string { return i.Message.Subject }

// Title returns the message subject for the list.
func (i MessageItem) Title() string { return i.Message.Subject }

// Description returns a short summary line for the list.
func (i MessageItem) Description() string {
	from := i.Message.FromDisplay
	if from == "" {
		from = i.Message.FromAddress
	}
	return fmt.Sprintf("%s | %s", from, relativeTime(i.Message.Date))
}

// ItemDelegate implements list.ItemDelegate for rendering inbox rows.
type ItemDelegate struct {
	// staleAccounts maps account IDs to true while the account has a
	// sync error. Shared by reference with the inbox Model so updates
	// are visible.
	staleAccounts map[string]bool
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused for now).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single inbox row.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	mi, ok := item.(MessageItem)
	if !ok {
		return
	}

	msg := mi.Message
	isSelected := index == m.Index()

	prefix := " "
	if msg.Unseen {
		prefix = theme.UnseenStyle.Render("●")
	}

	acctBadge := theme.AccountLabelStyle(mi.AccountName).Render(shortLabel(mi.AccountName))

	from := msg.FromDisplay
	if from == "" {
		from = msg.FromAddress
	}

	tokenBadge := ""
	if msg.Token != "" {
		tokenBadge = theme.TokenBadgeStyle.Render(" #" + msg.Token)
	}

	attachBadge := ""
	if msg.AttachmentCount > 0 {
		attachBadge = theme.AttachmentStyle.Render(fmt.Sprintf(" [%d]", msg.AttachmentCount))
	}

	staleBadge := ""
	if d.staleAccounts[mi.Message.AccountID] {
		staleBadge = theme.AttachmentStyle.Render(" !")
	}

	timeStr := theme.DimmedStyle.Render(relativeTime(msg.Date))

	line := fmt.Sprintf(
		"%s %s %s%s%s%s  %s  %s",
		prefix, acctBadge, msg.Subject, tokenBadge, attachBadge, staleBadge, from, timeStr,
	)

	if !msg.Unseen {
		line = theme.DimmedStyle.Render(line)
	}

	if isSelected {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// shortLabel truncates an account label to a compact badge.
func shortLabel(name string) string {
	if name == "" {
		return "?"
	}
	runes := []rune(name)
	if len(runes) <= 4 {
		return name
	}
	return string(runes[:4])
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}

	d := time.Since(*t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case d < 24*time.Hour:
		hrs := int(d.Hours())
		if hrs == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hrs)
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		weeks := int(d.Hours() / 24 / 7)
		if weeks == 1 {
			return "1w ago"
		}
		return fmt.Sprintf("%dw ago", weeks)
	}
}
