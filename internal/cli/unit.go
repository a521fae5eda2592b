package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/matchsync/internal/api/request"
	"github.com/mcoot/matchsync/internal/api/response"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/services/roster"
)

func newUnitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unit",
		Short: "Roster and KO commands",
	}

	cmd.AddCommand(newUnitAddCmd())
	cmd.AddCommand(newUnitListCmd())
	cmd.AddCommand(newUnitImportCmd())
	cmd.AddCommand(newUnitKOCmd("ko", "Mark a unit knocked out", true))
	cmd.AddCommand(newUnitKOCmd("revive", "Bring a knocked out unit back", false))
	cmd.AddCommand(newUnitAttachCmd())
	cmd.AddCommand(newUnitDetachCmd())

	return cmd
}

func newUnitAddCmd() *cobra.Command {
	var in request.AddUnitRequest
	var attachTo string

	cmd := &cobra.Command{
		Use:   "add <match> <1|2>",
		Short: "Add a unit to your roster",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseSlot(args[1])
			if err != nil {
				return err
			}
			if attachTo != "" {
				target := model.UnitID(attachTo)
				in.AttachedTo = &target
			}
			var result model.Unit
			path := matchPath(model.MatchID(args[0]), fmt.Sprintf("/slots/%d/units", slot))
			if err := client.Post(path, in, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "Unit name (required)")
	cmd.Flags().IntVar(&in.Points, "points", 0, "Point value (required)")
	cmd.Flags().StringVar(&in.Collection, "collection", "", "Collection code")
	cmd.Flags().StringVar(&in.Number, "number", "", "Collector number")
	cmd.Flags().BoolVar(&in.IsSideline, "sideline", false, "Add to the sideline, where it never scores")
	cmd.Flags().StringVar(&attachTo, "attach-to", "", "Carrier unit to attach to")
	cmd.Flags().StringVar(&in.AttachmentKind, "kind", "", "Attachment kind: Equipment, Avatar, Other")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("points")

	return cmd
}

func newUnitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <match> <1|2>",
		Short: "List a slot's units",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseSlot(args[1])
			if err != nil {
				return err
			}
			var result response.Units
			if err := client.Get(matchPath(model.MatchID(args[0]), fmt.Sprintf("/slots/%d/units", slot)), &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newUnitImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <match> <1|2> <team>",
		Short: "Import a team from the team builder into your roster",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseSlot(args[1])
			if err != nil {
				return err
			}
			var result roster.ImportResult
			path := matchPath(model.MatchID(args[0]), fmt.Sprintf("/slots/%d/import", slot))
			if err := client.Post(path, request.ImportTeamRequest{Team: args[2]}, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newUnitKOCmd(use, short string, ko bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <match> <unit>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result roster.KOResult
			path := matchPath(model.MatchID(args[0]), "/units/"+args[1]+"/ko")
			if err := client.Post(path, request.SetKORequest{KO: &ko}, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newUnitAttachCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "attach <match> <unit> <carrier>",
		Short: "Attach a unit to a carrier on the same roster",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := request.AttachRequest{Target: model.UnitID(args[2]), Kind: kind}
			var result model.Unit
			if err := client.Post(matchPath(model.MatchID(args[0]), "/units/"+args[1]+"/attach"), req, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Attachment kind: Equipment, Avatar, Other")

	return cmd
}

func newUnitDetachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detach <match> <unit>",
		Short: "Detach a unit from its carrier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result model.Unit
			if err := client.Post(matchPath(model.MatchID(args[0]), "/units/"+args[1]+"/detach"), nil, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}
