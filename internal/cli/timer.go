package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/matchsync/internal/api/response"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/services/timer"
)

func newTimerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Match clock commands",
	}

	cmd.AddCommand(newTimerActionCmd("start", "Start or resume the clock"))
	cmd.AddCommand(newTimerActionCmd("pause", "Pause the clock"))
	cmd.AddCommand(newTimerActionCmd("reset", "Stop the clock and restore the full duration"))
	cmd.AddCommand(&cobra.Command{
		Use:   "show <match>",
		Short: "Show the clock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result timer.Status
			if err := client.Get(matchPath(model.MatchID(args[0]), "/timer"), &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	})

	return cmd
}

func newTimerActionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <match>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.Match
			if err := client.Post(matchPath(model.MatchID(args[0]), "/timer/"+action), nil, &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}
