package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newTokenCommand() *cobra.Command {
	var userFlag string

	command := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user (local development)",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(userFlag)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := a.Services.Auth.IssueAccessToken(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	command.Flags().StringVar(&userFlag, "user", "", "user id")
	_ = command.MarkFlagRequired("user")
	return command
}
