package discord

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/galdahar56/raid-logger-bot-2/internal/controls"
	"github.com/galdahar56/raid-logger-bot-2/internal/coordinator"
	applog "github.com/galdahar56/raid-logger-bot-2/internal/log"
	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// ReplyUnknownControl answers presses on controls this bot did not issue.
const ReplyUnknownControl = "⚠️ This button is no longer supported."

// Handler processes one signup request.
type Handler interface {
	Handle(ctx context.Context, req coordinator.Request) coordinator.Outcome
}

// Router turns component interactions into coordinator requests.
type Router struct {
	handler Handler
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRouter returns a router. timeout bounds each request; zero means 10s.
func NewRouter(handler Handler, timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Router{
		handler: handler,
		timeout: timeout,
		logger:  applog.WithComponent("discord"),
	}
}

// OnInteraction is registered with Session.AddHandler.
func (r *Router) OnInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	r.Route(ctx, s, i.Interaction)
}

// Route handles one interaction: it acknowledges privately, runs the request
// and answers with the outcome's reply.
func (r *Router) Route(ctx context.Context, api API, i *discordgo.Interaction) {
	if i == nil || i.Type != discordgo.InteractionMessageComponent {
		return
	}
	data := i.MessageComponentData()

	action, role, messageID, err := controls.ParseID(data.CustomID)
	if err != nil {
		r.logger.Debug().Str("custom_id", data.CustomID).Msg("ignoring unknown control")
		r.respond(ctx, api, i, ReplyUnknownControl)
		return
	}

	user := interactionUser(i)
	if user == nil {
		r.logger.Warn().Str("interaction_id", i.ID).Msg("interaction without user")
		return
	}

	if err := api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx)); err != nil {
		r.logger.Warn().Err(err).Str("interaction_id", i.ID).Msg("failed to acknowledge interaction")
		return
	}

	out := r.handler.Handle(ctx, coordinator.Request{
		Ref:      signup.EventRef{ChannelID: i.ChannelID, MessageID: messageID},
		Action:   action,
		Role:     role,
		Claimant: Claimant(user),
	})

	if _, err := api.FollowupMessageCreate(i, false, &discordgo.WebhookParams{
		Content: out.Reply,
		Flags:   discordgo.MessageFlagsEphemeral,
	}, discordgo.WithContext(ctx)); err != nil {
		logger := applog.WithContext(ctx, r.logger)
		logger.Warn().Err(err).Str("status", out.Status.String()).Msg("failed to send reply")
	}
}

func (r *Router) respond(ctx context.Context, api API, i *discordgo.Interaction, content string) {
	err := api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx))
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn().Err(err).Str("interaction_id", i.ID).Msg("failed to respond")
	}
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// Claimant maps a platform user to a claimant. The display name prefers the
// account-wide global name over the username.
func Claimant(u *discordgo.User) signup.Claimant {
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	return signup.Claimant{UserID: u.ID, DisplayName: name}
}
