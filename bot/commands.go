package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dreamscached/minequery/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/frostpeak/gatewarden/config"
	"github.com/frostpeak/gatewarden/types"
)

const commandTimeout = 15 * time.Second

func commandDefinitions() []*discordgo.ApplicationCommand {
	serverIDOption := &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionString,
		Name:         "server",
		Description:  "ID of the target server",
		Required:     true,
		Autocomplete: true,
	}
	return []*discordgo.ApplicationCommand{
		{
			Name:        "ping",
			Description: "Check that the bot is alive",
		},
		{
			Name:        "whitelist",
			Description: "Whitelist requests",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "request",
					Description: "Request to be whitelisted on a server",
					Options: []*discordgo.ApplicationCommandOption{
						serverIDOption,
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "username",
							Description: "Your Minecraft username",
							Required:    true,
						},
					},
				},
			},
		},
		{
			Name:        "server",
			Description: "Managed server info",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List all servers with their status",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "players",
					Description: "List online players on a server",
					Options: []*discordgo.ApplicationCommandOption{
						serverIDOption,
					},
				},
			},
		},
	}
}

func (svc *Service) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	switch data.Name {
	case "ping":
		svc.respondEphemeral(s, i, "Pong!")
	case "whitelist":
		if len(data.Options) > 0 && data.Options[0].Name == "request" {
			svc.handleWhitelistRequest(s, i, data.Options[0])
		}
	case "server":
		if len(data.Options) == 0 {
			return
		}
		switch data.Options[0].Name {
		case "list":
			svc.handleServerList(s, i)
		case "players":
			svc.handleServerPlayers(s, i, data.Options[0])
		}
	}
}

func (svc *Service) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	partial := ""
	for _, sub := range i.ApplicationCommandData().Options {
		for _, opt := range sub.Options {
			if opt.Name == "server" && opt.Focused {
				partial = opt.StringValue()
			}
		}
	}
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(svc.cfg.Servers))
	for _, server := range svc.cfg.Servers {
		if !strings.HasPrefix(server.ID, partial) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  fmt.Sprintf("%s (%s)", server.Name, server.ID),
			Value: server.ID,
		})
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		svc.logger.WithField("err", err.Error()).Error("Unable to respond to autocomplete")
	}
}

// handleWhitelistRequest validates the submission, persists the pending row
// and posts the review embed with the approve/deny buttons.
func (svc *Service) handleWhitelistRequest(s *discordgo.Session, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var serverID, username string
	for _, opt := range sub.Options {
		switch opt.Name {
		case "server":
			serverID = opt.StringValue()
		case "username":
			username = opt.StringValue()
		}
	}
	log := svc.logger.WithFields(logrus.Fields{
		"serverId": serverID,
		"username": username,
	})

	server, ok := svc.cfg.FindServer(serverID)
	if !ok {
		svc.respondEphemeral(s, i, fmt.Sprintf("Server with ID `%s` not found. Use `/server list` to see all server IDs.", serverID))
		return
	}

	exists, err := svc.mojang.UsernameExists(ctx, username)
	if err != nil {
		log.WithField("err", err.Error()).Error("Username lookup failed")
		svc.respondEphemeral(s, i, "Could not verify your Minecraft username right now. Please try again in a moment.")
		return
	}
	if !exists {
		svc.respondEphemeral(s, i, fmt.Sprintf("Invalid Minecraft username `%s`. Please make sure you entered it correctly.", username))
		return
	}

	duplicate, err := svc.dbService.HasPendingRequest(ctx, serverID, username)
	if err != nil {
		log.WithField("err", err.Error()).Error("Unable to check for duplicate request")
		svc.respondEphemeral(s, i, "Something went wrong storing your request. Please try again.")
		return
	}
	if duplicate {
		svc.respondEphemeral(s, i, fmt.Sprintf("There is already a pending whitelist request for `%s` on this server.", username))
		return
	}

	request := types.WhitelistRequest{
		ID:                uuid.NewString(),
		ServerID:          serverID,
		RequesterID:       interactionUserID(i),
		MinecraftUsername: username,
	}
	if _, err := svc.dbService.CreateRequest(ctx, request); err != nil {
		log.WithField("err", err.Error()).Error("Unable to create request")
		svc.respondEphemeral(s, i, "Something went wrong storing your request. Please try again.")
		return
	}
	if err := svc.stats.RecordSubmission(); err != nil {
		log.WithField("err", err.Error()).Error("Unable to update stats for new request")
	}

	if err := svc.postReviewMessage(s, request, server); err != nil {
		log.WithField("err", err.Error()).Error("Unable to post review message")
		svc.respondEphemeral(s, i, "Your request was stored but could not be posted for review. Please poke a moderator.")
		return
	}

	log.WithField("requestId", request.ID).Info("New whitelist request submitted")
	svc.respondEphemeral(s, i, fmt.Sprintf("Sent whitelist request for server `%s`!", serverID))
}

func (svc *Service) postReviewMessage(s *discordgo.Session, request types.WhitelistRequest, server *config.Server) error {
	pings := make([]string, 0, len(svc.cfg.Whitelist.PingRoles))
	for _, roleID := range svc.cfg.Whitelist.PingRoles {
		pings = append(pings, fmt.Sprintf("<@&%s>", roleID))
	}

	embed := &discordgo.MessageEmbed{
		Title: ":bell: Whitelist Request",
		Color: 0xdf8e1d,
		Description: fmt.Sprintf(
			"<@%s> has requested to be whitelisted on server _%s_!\n\n**Minecraft Username:** `%s`\n**Server ID:** `%s`\n**Request ID:** `%s`",
			request.RequesterID, server.Name, request.MinecraftUsername, server.ID, request.ID),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Requested at %s", time.Now().UTC().Format(time.RFC1123)),
		},
	}

	_, err := s.ChannelMessageSendComplex(svc.cfg.Whitelist.RequestChannel, &discordgo.MessageSend{
		Content: strings.Join(pings, " "),
		Embeds:  []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Approve",
						Style:    discordgo.SuccessButton,
						CustomID: decisionCustomID(types.Approve, request.ID),
					},
					discordgo.Button{
						Label:    "Deny",
						Style:    discordgo.DangerButton,
						CustomID: decisionCustomID(types.Deny, request.ID),
					},
				},
			},
		},
	})
	return err
}

func (svc *Service) handleServerList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	fields := make([]*discordgo.MessageEmbedField, 0, len(svc.cfg.Servers))
	for _, server := range svc.cfg.Servers {
		fields = append(fields, svc.serverListField(ctx, server))
	}
	svc.respondEmbedEphemeral(s, i, &discordgo.MessageEmbed{
		Title:       "ℹ️ Servers",
		Color:       0x04a5e5,
		Description: "All managed servers and their current status.",
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Looking for a list of players? Use /server players!",
		},
	})
}

func (svc *Service) serverListField(ctx context.Context, server config.Server) *discordgo.MessageEmbedField {
	status := "Offline"
	if server.CommandsDisabled {
		status = "Unmanaged"
	} else if running, err := svc.probe.Running(ctx, server.ContainerID); err != nil {
		svc.logger.WithFields(logrus.Fields{
			"serverId": server.ID,
			"err":      err.Error(),
		}).Warn("Liveness probe failed for server list")
		status = "Unknown"
	} else if running {
		status = "Online"
	}

	value := fmt.Sprintf("**ID:** `%s`\n**Status:** %s", server.ID, status)
	if status == "Online" && server.QueryPort > 0 {
		if ping, err := minequery.Ping17(server.Address, server.QueryPort); err == nil {
			value += fmt.Sprintf("\n**Players:** `%d/%d`\n**Version:** `%s`",
				ping.OnlinePlayers, ping.MaxPlayers, ping.VersionName)
		}
	}
	return &discordgo.MessageEmbedField{Name: server.Name, Value: value}
}

func (svc *Service) handleServerPlayers(s *discordgo.Session, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	var serverID string
	for _, opt := range sub.Options {
		if opt.Name == "server" {
			serverID = opt.StringValue()
		}
	}
	server, ok := svc.cfg.FindServer(serverID)
	if !ok {
		svc.respondEphemeral(s, i, fmt.Sprintf("Server with ID `%s` not found.", serverID))
		return
	}
	if server.QueryPort == 0 {
		svc.respondEphemeral(s, i, "This server does not expose a status port.")
		return
	}

	ping, err := minequery.Ping17(server.Address, server.QueryPort)
	if err != nil {
		svc.respondEphemeral(s, i, "Failed to query server!")
		return
	}
	if len(ping.SamplePlayers) == 0 {
		svc.respondEphemeral(s, i, "No players online right now.")
		return
	}

	names := make([]string, 0, len(ping.SamplePlayers))
	for _, player := range ping.SamplePlayers {
		names = append(names, "- "+player.Nickname)
	}
	svc.respondEmbedEphemeral(s, i, &discordgo.MessageEmbed{
		Title: "🫂 Online players",
		Color: 0x04a5e5,
		Description: fmt.Sprintf("%d players online on _**%s**_!\n\n%s",
			ping.OnlinePlayers, server.Name, strings.Join(names, "\n")),
	})
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
