package bot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"

	"github.com/frostpeak/gatewarden/types"
)

func TestActorSnapshot(t *testing.T) {
	i := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Member: &discordgo.Member{
				User:        &discordgo.User{ID: "u1"},
				Roles:       []string{"r1", "r2"},
				Permissions: discordgo.PermissionAdministrator,
			},
		},
	}
	actor := actorSnapshot(i)
	assert.Equal(t, "u1", actor.ID)
	assert.Equal(t, []string{"r1", "r2"}, actor.Roles)
	assert.True(t, actor.IsAdmin)
}

func TestActorSnapshotNoAdmin(t *testing.T) {
	i := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Member: &discordgo.Member{
				User:        &discordgo.User{ID: "u2"},
				Roles:       []string{"r1"},
				Permissions: discordgo.PermissionSendMessages,
			},
		},
	}
	assert.False(t, actorSnapshot(i).IsAdmin)
}

func TestResolutionEmbeds(t *testing.T) {
	request := &types.WhitelistRequest{RequesterID: "u1", MinecraftUsername: "Notch"}
	tests := []struct {
		status    types.Status
		wantTitle string
	}{
		{types.StatusApproved, "approved"},
		{types.StatusDenied, "denied"},
		{types.StatusUnauthorized, "Unauthorized"},
		{types.StatusAlreadyResolved, "not found"},
		{types.StatusServerUnavailable, "unavailable"},
		{types.StatusTargetNotRunning, "not running"},
		{types.StatusActionFailed, "command failed"},
	}
	for _, tc := range tests {
		embed := resolutionEmbed(types.Resolution{Status: tc.status, Request: request})
		assert.Contains(t, embed.Title, tc.wantTitle, "status %s", tc.status)
	}
}
