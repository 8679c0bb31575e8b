// Package bot is the Discord transport: slash commands create pending
// whitelist requests, review buttons produce decision events, and outcome
// embeds are rendered back to the clicking reviewer. All lifecycle
// invariants live in the coordinator; this package only parses, renders and
// forwards.
package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/frostpeak/gatewarden/config"
	"github.com/frostpeak/gatewarden/coordinator"
	"github.com/frostpeak/gatewarden/db"
	"github.com/frostpeak/gatewarden/mojang"
	"github.com/frostpeak/gatewarden/probe"
	"github.com/frostpeak/gatewarden/stats"
	"github.com/frostpeak/gatewarden/types"
)

// Resolver runs one decision event to its terminal outcome.
type Resolver interface {
	Resolve(ctx context.Context, event types.DecisionEvent) (types.Resolution, error)
}

var _ Resolver = (*coordinator.Service)(nil)

// Service owns the Discord session and its handlers.
type Service struct {
	session     *discordgo.Session
	cfg         *config.Config
	dbService   *db.Service
	coordinator Resolver
	mojang      *mojang.Client
	probe       *probe.Service
	stats       *stats.Service
	logger      *logrus.Logger
}

// NewService wires the bot. The session is created but not opened.
func NewService(cfg *config.Config, dbService *db.Service, resolver Resolver, mojangClient *mojang.Client, probeService *probe.Service, statsService *stats.Service, logger *logrus.Logger) (*Service, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	svc := &Service{
		session:     session,
		cfg:         cfg,
		dbService:   dbService,
		coordinator: resolver,
		mojang:      mojangClient,
		probe:       probeService,
		stats:       statsService,
		logger:      logger,
	}
	session.AddHandler(svc.handleInteraction)
	return svc, nil
}

// Session exposes the underlying Discord session, mainly so the worker can
// share it for DM delivery.
func (svc *Service) Session() *discordgo.Session {
	return svc.session
}

// Start opens the gateway connection and registers the application commands.
func (svc *Service) Start() error {
	if err := svc.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	appID := svc.session.State.User.ID
	if _, err := svc.session.ApplicationCommandBulkOverwrite(appID, "", commandDefinitions()); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	svc.logger.WithFields(logrus.Fields{
		"user": svc.session.State.User.Username,
	}).Info("Discord session established")
	return nil
}

// Stop closes the gateway connection.
func (svc *Service) Stop() error {
	return svc.session.Close()
}

func (svc *Service) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		svc.handleCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		svc.handleAutocomplete(s, i)
	case discordgo.InteractionMessageComponent:
		svc.handleComponent(s, i)
	}
}

// respondEphemeral answers an interaction with a throwaway message only the
// acting user sees.
func (svc *Service) respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		svc.logger.WithField("err", err.Error()).Error("Unable to respond to interaction")
	}
}

func (svc *Service) respondEmbedEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		svc.logger.WithField("err", err.Error()).Error("Unable to respond to interaction")
	}
}
