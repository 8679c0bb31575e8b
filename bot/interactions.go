package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/frostpeak/gatewarden/types"
)

const resolveTimeout = 30 * time.Second

// handleComponent turns a review button click into a decision event and has
// the coordinator resolve it. The custom id is parsed exactly once, here.
func (svc *Service) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	decision, requestID, ok := parseDecisionCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}

	// Acknowledge right away; RCON dispatch can take a few seconds.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		svc.logger.WithField("err", err.Error()).Error("Unable to acknowledge interaction")
		return
	}

	event := types.DecisionEvent{
		RequestID: requestID,
		Decision:  decision,
		Actor:     actorSnapshot(i),
		ChannelID: i.ChannelID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	resolution, err := svc.coordinator.Resolve(ctx, event)
	if err != nil {
		// Store unavailable during the claim: the row's fate is
		// indeterminate, so tell the reviewer to click again.
		svc.followupEmbed(s, i, &discordgo.MessageEmbed{
			Title:       ":warning: Temporary failure",
			Color:       0xdf8e1d,
			Description: "The request store was unreachable. Nothing happened; please retry the decision.",
		})
		return
	}

	if err := svc.stats.RecordResolution(resolution.Status); err != nil {
		svc.logger.WithFields(logrus.Fields{
			"requestId": requestID,
			"err":       err.Error(),
		}).Error("Unable to update stats for resolution")
	}
	svc.followupEmbed(s, i, resolutionEmbed(resolution))
}

// actorSnapshot captures the clicking user's identity, roles and admin
// permission at the moment of the click.
func actorSnapshot(i *discordgo.InteractionCreate) types.Actor {
	actor := types.Actor{ID: interactionUserID(i)}
	if i.Member != nil {
		actor.Roles = i.Member.Roles
		actor.IsAdmin = i.Member.Permissions&discordgo.PermissionAdministrator != 0
	}
	return actor
}

func (svc *Service) followupEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
		Flags:  discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		svc.logger.WithField("err", err.Error()).Error("Unable to send interaction followup")
	}
}

func resolutionEmbed(resolution types.Resolution) *discordgo.MessageEmbed {
	switch resolution.Status {
	case types.StatusApproved:
		return &discordgo.MessageEmbed{
			Title: ":white_check_mark: Whitelist request approved!",
			Color: 0x40a02b,
			Description: fmt.Sprintf("Whitelist request approved for <@%s>, `%s` is now whitelisted.",
				resolution.Request.RequesterID, resolution.Request.MinecraftUsername),
		}
	case types.StatusDenied:
		return &discordgo.MessageEmbed{
			Title: ":x: Whitelist request denied",
			Color: 0xd20f39,
			Description: fmt.Sprintf("Whitelist request denied for <@%s>.",
				resolution.Request.RequesterID),
		}
	case types.StatusUnauthorized:
		return &discordgo.MessageEmbed{
			Title:       ":x: Error: Unauthorized",
			Color:       0xd20f39,
			Description: "You are not authorized to perform this action.",
		}
	case types.StatusAlreadyResolved:
		return &discordgo.MessageEmbed{
			Title:       ":x: Error: Whitelist request not found",
			Color:       0xd20f39,
			Description: "This request no longer exists. Most likely another moderator already resolved it.",
		}
	case types.StatusServerUnavailable:
		return &discordgo.MessageEmbed{
			Title:       ":x: Error: Server unavailable",
			Color:       0xd20f39,
			Description: "The target server is unknown or not managed. The request record was cleared; the player has to resubmit.",
		}
	case types.StatusTargetNotRunning:
		return &discordgo.MessageEmbed{
			Title:       ":x: Error: Server not running",
			Color:       0xd20f39,
			Description: "The server container is not running. The request record was cleared; the player has to resubmit.",
		}
	case types.StatusActionFailed:
		return &discordgo.MessageEmbed{
			Title:       ":x: Error: Whitelist command failed",
			Color:       0xd20f39,
			Description: "The whitelist command could not be delivered to the server. The request record was cleared; whitelist the player manually or ask them to resubmit.",
		}
	}
	return &discordgo.MessageEmbed{
		Title: "Resolution",
		Color: 0x04a5e5,
	}
}
