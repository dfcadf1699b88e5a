package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// AnnouncementSource fetches announcement text for rehydration.
type AnnouncementSource struct {
	api API
}

// NewAnnouncementSource returns a signup.AnnouncementSource backed by api.
func NewAnnouncementSource(api API) *AnnouncementSource {
	return &AnnouncementSource{api: api}
}

// FetchAnnouncement returns the message content and embeds flattened into
// "Label: Value" lines.
func (s *AnnouncementSource) FetchAnnouncement(ctx context.Context, ref signup.EventRef) (string, error) {
	msg, err := s.api.ChannelMessage(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", signup.ErrAnnouncementNotFound, ref.MessageID)
		}
		return "", fmt.Errorf("discord: fetch announcement %s: %w", ref.MessageID, err)
	}
	return Flatten(msg), nil
}

// Flatten renders a message as plain lines: content first, then each embed's
// title, description, fields and footer.
func Flatten(msg *discordgo.Message) string {
	var b strings.Builder
	line := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			b.WriteString(s)
			b.WriteByte('\n')
		}
	}
	line(msg.Content)
	for _, e := range msg.Embeds {
		if e == nil {
			continue
		}
		line(e.Title)
		line(e.Description)
		for _, f := range e.Fields {
			if f == nil {
				continue
			}
			line(f.Name + ": " + f.Value)
		}
		if e.Footer != nil {
			line(e.Footer.Text)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
