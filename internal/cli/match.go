package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mcoot/matchsync/internal/api/request"
	"github.com/mcoot/matchsync/internal/api/response"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/services/scoring"
)

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match management commands",
	}

	cmd.AddCommand(newMatchCreateCmd())
	cmd.AddCommand(newMatchGetCmd())
	cmd.AddCommand(newMatchDeleteCmd())
	cmd.AddCommand(newMatchStatusCmd())
	cmd.AddCommand(newMatchRepairCmd())

	return cmd
}

func newMatchCreateCmd() *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a match hosted by you",
		Long: `Create a match. Without --secret the match is public; with it, players
must present the secret to claim a slot.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := request.CreateMatchRequest{Name: args[0], Public: secret == "", Secret: secret}
			var result response.Match
			if err := client.Post("/api/v1/matches", req, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Make the match private behind this secret")

	return cmd
}

func newMatchGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <match>",
		Short: "Show a match with its players, units and spectators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.MatchState
			if err := client.Get(matchPath(model.MatchID(args[0]), ""), &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newMatchDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <match>",
		Short: "Delete a match (host only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Delete(matchPath(model.MatchID(args[0]), "")); err != nil {
				return err
			}
			output(cmd).PrintMessage("Match deleted")
			return nil
		},
	}
}

func newMatchStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <match> <waiting|active|finished>",
		Short: "Record the match status (host only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := request.SetStatusRequest{Status: model.MatchStatus(args[1])}
			var result response.Match
			if err := client.Patch(matchPath(model.MatchID(args[0]), "/status"), req, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newMatchRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair <match>",
		Short: "Recompute both scoring ledgers from the units (host only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result scoring.RepairReport
			if err := client.Post(matchPath(model.MatchID(args[0]), "/repair"), nil, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newSlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Claim or leave a player slot",
	}

	cmd.AddCommand(newSlotClaimCmd())
	cmd.AddCommand(newSlotLeaveCmd())

	return cmd
}

func newSlotClaimCmd() *cobra.Command {
	var name, secret string

	cmd := &cobra.Command{
		Use:   "claim <match> <1|2>",
		Short: "Claim a player slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseSlot(args[1])
			if err != nil {
				return err
			}
			req := request.ClaimSlotRequest{DisplayName: name, Secret: secret}
			var result model.MatchPlayer
			path := matchPath(model.MatchID(args[0]), fmt.Sprintf("/slots/%d/claim", slot))
			if err := client.Post(path, req, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Player name shown for the slot (default: your display name)")
	cmd.Flags().StringVar(&secret, "secret", "", "Secret of a private match")

	return cmd
}

func newSlotLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave <match>",
		Short: "Give up your slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Post(matchPath(model.MatchID(args[0]), "/leave"), nil, nil); err != nil {
				return err
			}
			output(cmd).PrintMessage("Left slot")
			return nil
		},
	}
}

func newSpectateCmd() *cobra.Command {
	var stop bool

	cmd := &cobra.Command{
		Use:   "spectate <match>",
		Short: "Join (or with --stop, leave) a match's spectators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := matchPath(model.MatchID(args[0]), "/spectate")
			if stop {
				if err := client.Delete(path); err != nil {
					return err
				}
				output(cmd).PrintMessage("Stopped spectating")
				return nil
			}
			var result model.Spectator
			if err := client.Post(path, nil, &result); err != nil {
				return err
			}
			output(cmd).PrintMessage("Spectating " + args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&stop, "stop", false, "Stop spectating")

	return cmd
}

func parseSlot(s string) (model.Slot, error) {
	n, err := strconv.Atoi(s)
	slot := model.Slot(n)
	if err != nil || !slot.Valid() {
		return 0, fmt.Errorf("slot must be 1 or 2, got %q", s)
	}
	return slot, nil
}
