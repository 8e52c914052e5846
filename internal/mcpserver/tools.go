package mcpserver

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/discord-voice-mod/internal/volume"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, moderationStatusTool(), s.moderationStatusHandler())
	mcp.AddTool(s.mcp, volumeListTool(), s.volumeListHandler())
	mcp.AddTool(s.mcp, volumeResetAllTool(), s.volumeResetAllHandler())
	mcp.AddTool(s.mcp, whitelistAddTool(), s.whitelistAddHandler())
	mcp.AddTool(s.mcp, whitelistRemoveTool(), s.whitelistRemoveHandler())
	mcp.AddTool(s.mcp, whitelistListTool(), s.whitelistListHandler())
}

func (s *Server) scaler() volume.Scaler {
	return volume.ForCurve(s.store.Snapshot().VolumeCurve)
}

// ModerationStatusInput is the (empty) input for moderation_status.
type ModerationStatusInput struct{}

// ActiveOverride is one moderated user in a status result. Volumes are
// display-scale percentages.
type ActiveOverride struct {
	UserID         string `json:"user_id" jsonschema:"moderated user identifier"`
	OriginalVolume int    `json:"original_volume" jsonschema:"display volume before moderation"`
	TargetVolume   int    `json:"target_volume" jsonschema:"display volume being enforced"`
}

// ModerationStatusResult lists every active override.
type ModerationStatusResult struct {
	Active []ActiveOverride `json:"active" jsonschema:"currently moderated users"`
}

func moderationStatusTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "moderation_status",
		Description: "Lists users currently under an active local volume override.",
	}
}

func (s *Server) moderationStatusHandler() mcp.ToolHandlerFor[ModerationStatusInput, ModerationStatusResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ModerationStatusInput) (*mcp.CallToolResult, ModerationStatusResult, error) {
		sc := s.scaler()
		var result ModerationStatusResult
		for _, ov := range s.engine.Active() {
			result.Active = append(result.Active, ActiveOverride{
				UserID:         ov.UserID,
				OriginalVolume: int(math.Round(sc.ToDisplay(ov.OriginalVolume))),
				TargetVolume:   int(math.Round(sc.ToDisplay(ov.TargetVolume))),
			})
		}
		return nil, result, nil
	}
}

// VolumeListInput is the (empty) input for volume_list.
type VolumeListInput struct{}

// UserVolume is one non-default local volume.
type UserVolume struct {
	UserID string `json:"user_id" jsonschema:"user identifier"`
	Volume int    `json:"volume" jsonschema:"display volume percentage"`
}

// VolumeListResult lists every non-default local volume.
type VolumeListResult struct {
	Volumes []UserVolume `json:"volumes" jsonschema:"users with a non-default local volume"`
}

func volumeListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "volume_list",
		Description: "Lists every user with a non-default local volume.",
	}
}

func (s *Server) volumeListHandler() mcp.ToolHandlerFor[VolumeListInput, VolumeListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ VolumeListInput) (*mcp.CallToolResult, VolumeListResult, error) {
		sc := s.scaler()
		known := s.controller.Known()
		ids := make([]string, 0, len(known))
		for id := range known {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		var result VolumeListResult
		for _, id := range ids {
			result.Volumes = append(result.Volumes, UserVolume{
				UserID: id,
				Volume: int(math.Round(sc.ToDisplay(known[id]))),
			})
		}
		return nil, result, nil
	}
}

// VolumeResetAllInput is the (empty) input for volume_reset_all.
type VolumeResetAllInput struct{}

// VolumeResetAllResult reports how many volumes were reset.
type VolumeResetAllResult struct {
	Count int `json:"count" jsonschema:"number of users reset to the default volume"`
}

func volumeResetAllTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "volume_reset_all",
		Description: "Resets every non-default local volume back to 100%.",
	}
}

func (s *Server) volumeResetAllHandler() mcp.ToolHandlerFor[VolumeResetAllInput, VolumeResetAllResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ VolumeResetAllInput) (*mcp.CallToolResult, VolumeResetAllResult, error) {
		var result VolumeResetAllResult
		for id := range s.controller.Known() {
			if err := s.controller.Set(id, volume.DefaultVolume); err != nil {
				return nil, result, fmt.Errorf("reset %s: %w", id, err)
			}
			result.Count++
		}
		return nil, result, nil
	}
}

// WhitelistAddInput names the user to whitelist.
type WhitelistAddInput struct {
	UserID string `json:"user_id" jsonschema:"user identifier to whitelist"`
}

// WhitelistChangeResult reports whether the whitelist changed.
type WhitelistChangeResult struct {
	Changed bool `json:"changed" jsonschema:"true when the whitelist was modified"`
}

func whitelistAddTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "whitelist_add",
		Description: "Adds a user to the moderation whitelist so they are never moderated.",
	}
}

func (s *Server) whitelistAddHandler() mcp.ToolHandlerFor[WhitelistAddInput, WhitelistChangeResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input WhitelistAddInput) (*mcp.CallToolResult, WhitelistChangeResult, error) {
		added, err := s.store.AddWhitelist(input.UserID)
		if err != nil {
			return nil, WhitelistChangeResult{}, err
		}
		return nil, WhitelistChangeResult{Changed: added}, nil
	}
}

// WhitelistRemoveInput names the user to remove.
type WhitelistRemoveInput struct {
	UserID string `json:"user_id" jsonschema:"user identifier to remove from the whitelist"`
}

func whitelistRemoveTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "whitelist_remove",
		Description: "Removes a user from the moderation whitelist.",
	}
}

func (s *Server) whitelistRemoveHandler() mcp.ToolHandlerFor[WhitelistRemoveInput, WhitelistChangeResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input WhitelistRemoveInput) (*mcp.CallToolResult, WhitelistChangeResult, error) {
		removed, err := s.store.RemoveWhitelist(input.UserID)
		if err != nil {
			return nil, WhitelistChangeResult{}, err
		}
		return nil, WhitelistChangeResult{Changed: removed}, nil
	}
}

// WhitelistListInput is the (empty) input for whitelist_list.
type WhitelistListInput struct{}

// WhitelistListResult is the normalized whitelist.
type WhitelistListResult struct {
	UserIDs []string `json:"user_ids" jsonschema:"whitelisted user identifiers"`
}

func whitelistListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "whitelist_list",
		Description: "Lists the moderation whitelist.",
	}
}

func (s *Server) whitelistListHandler() mcp.ToolHandlerFor[WhitelistListInput, WhitelistListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ WhitelistListInput) (*mcp.CallToolResult, WhitelistListResult, error) {
		return nil, WhitelistListResult{UserIDs: s.store.WhitelistIDs()}, nil
	}
}
