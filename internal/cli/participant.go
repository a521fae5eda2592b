package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/matchsync/internal/api/request"
	"github.com/mcoot/matchsync/internal/api/response"
	"github.com/mcoot/matchsync/internal/model"
)

func newGuestCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "guest",
		Short: "Create a guest identity and save its session",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.AuthResponse
			if err := client.Post("/api/v1/participants/guest", request.CreateGuestRequest{DisplayName: name}, &result); err != nil {
				return err
			}

			if err := cfg.SaveToken(result.SessionToken); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			output(cmd).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the current identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result model.Participant
			if err := client.Get("/api/v1/participants/me", &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget its token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Post("/api/v1/participants/logout", nil, nil); err != nil {
				return err
			}
			if err := cfg.ClearToken(); err != nil {
				return err
			}
			output(cmd).PrintMessage("Logged out")
			return nil
		},
	}
}
