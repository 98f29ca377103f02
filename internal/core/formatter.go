package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valter-silva-au/saved-sync/pkg/models"
)

const (
	// MaxTitleRunes caps the text taken from an item for a task title.
	MaxTitleRunes = 100
	// DefaultTaskPrefix starts every task title.
	DefaultTaskPrefix = "Slack:"
	// NoTextPlaceholder opens the body of an item with blank text.
	NoTextPlaceholder = "(no text)"

	deepLinkBase = "https://slack.com/app_redirect"
)

// Formatter maps harvested items to task titles and bodies. Users and
// Channels are consulted for display names; after a batch prefetch they
// answer from cache.
type Formatter struct {
	Prefix      string
	TitleStyle  models.TitleStyle
	IncludeLink bool
	Users       NameLookup
	Channels    NameLookup
}

// Format returns the task title and body for item. Only the title is ever
// truncated.
func (f *Formatter) Format(ctx context.Context, item models.HarvestedItem) (title, body string) {
	switch it := item.(type) {
	case *models.MessageItem:
		return f.formatMessage(ctx, it)
	case *models.FileItem:
		return f.formatFile(ctx, it)
	case *models.ChannelItem:
		return f.formatChannel(it)
	case *models.FileCommentItem:
		return f.formatFileComment(it)
	case *models.UnknownItem:
		return f.formatUnknown(it)
	default:
		return f.title(string(item.Kind())), fmt.Sprintf("Starred item type: %s", item.Kind())
	}
}

func (f *Formatter) formatMessage(ctx context.Context, m *models.MessageItem) (string, string) {
	author := f.user(ctx, m.AuthorID)
	channel := f.channel(ctx, m.ChannelID)

	var title string
	if f.TitleStyle == models.TitleStyleText {
		summary := FirstLine(m.Text, MaxTitleRunes)
		if summary == "" {
			summary = "Saved Message"
		}
		title = f.title(summary)
	} else {
		title = f.title(fmt.Sprintf("Message from %s in %s", author, channel))
	}

	var b strings.Builder
	b.WriteString(textOrPlaceholder(m.Text))
	b.WriteString("\n\n")
	if f.IncludeLink {
		if link := DeepLink(m.TeamID, m.ChannelID, m.Timestamp); link != "" {
			fmt.Fprintf(&b, "Link: %s\n", link)
		}
	}
	if m.Permalink != "" {
		fmt.Fprintf(&b, "Permalink: %s\n", m.Permalink)
	}
	fmt.Fprintf(&b, "From: %s\nChannel: %s", author, channel)
	writeSavedOn(&b, m.SavedAt)

	return title, b.String()
}

func (f *Formatter) formatFile(ctx context.Context, file *models.FileItem) (string, string) {
	name := firstNonEmpty(file.Name, file.Title, "unknown file")
	owner := f.user(ctx, file.OwnerID)

	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\nFrom: %s", name, owner)
	if file.Permalink != "" {
		fmt.Fprintf(&b, "\nLink: %s", file.Permalink)
	}
	writeSavedOn(&b, file.SavedAt)

	return f.title("File: " + name), b.String()
}

func (f *Formatter) formatChannel(c *models.ChannelItem) (string, string) {
	name := firstNonEmpty(c.Name, c.ChannelID, "unknown")
	return f.title("Channel: #" + name), "Starred channel: #" + name
}

func (f *Formatter) formatFileComment(c *models.FileCommentItem) (string, string) {
	summary := FirstLine(c.Text, MaxTitleRunes)
	if summary == "" {
		summary = "Saved Comment"
	}

	var b strings.Builder
	b.WriteString(textOrPlaceholder(c.Text))
	b.WriteString("\n\n")
	if c.FileID != "" {
		fmt.Fprintf(&b, "File: %s\n", c.FileID)
	}
	b.WriteString("Type: file comment")
	writeSavedOn(&b, c.SavedAt)

	return f.title("Comment: " + summary), b.String()
}

func (f *Formatter) formatUnknown(u *models.UnknownItem) (string, string) {
	tag := firstNonEmpty(u.TypeTag, "unknown")
	body := "Starred item type: " + tag
	if len(u.Raw) > 0 {
		// encoding/json sorts map keys, keeping the dump deterministic.
		if dump, err := json.MarshalIndent(u.Raw, "", "  "); err == nil {
			body += "\n\n" + string(dump)
		}
	}
	return f.title(tag), body
}

func (f *Formatter) title(rest string) string {
	prefix := f.Prefix
	if prefix == "" {
		return rest
	}
	return prefix + " " + rest
}

func (f *Formatter) user(ctx context.Context, id string) string {
	if id == "" {
		return UnknownID
	}
	if f.Users == nil {
		return id
	}
	return f.Users.Resolve(ctx, id)
}

func (f *Formatter) channel(ctx context.Context, id string) string {
	if id == "" {
		return "DM"
	}
	if f.Channels == nil {
		return "#" + id
	}
	return f.Channels.Resolve(ctx, id)
}

func textOrPlaceholder(text string) string {
	if strings.TrimSpace(text) == "" {
		return NoTextPlaceholder
	}
	return text
}

// FirstLine returns the first non-blank line of text, cut to max runes.
func FirstLine(text string, max int) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	return TruncateRunes(text, max)
}

// TruncateRunes cuts s to at most max runes without splitting a UTF-8
// sequence.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

// DeepLink builds an app redirect link to a message. The timestamp's
// decimal point is removed. Any missing component yields "".
func DeepLink(teamID, channelID, timestamp string) string {
	ts := strings.ReplaceAll(timestamp, ".", "")
	if teamID == "" || channelID == "" || ts == "" {
		return ""
	}
	return fmt.Sprintf("%s?team=%s&channel=%s&message_ts=%s", deepLinkBase, teamID, channelID, ts)
}

func writeSavedOn(b *strings.Builder, saved time.Time) {
	if saved.IsZero() {
		return
	}
	fmt.Fprintf(b, "\nSaved on: %s", saved.UTC().Format("2006-01-02 15:04 UTC"))
}
