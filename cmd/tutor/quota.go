package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-tutor/internal/domain/quota"
)

func newQuotaCommand() *cobra.Command {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and administer quota accounts",
	}
	quotaCmd.AddCommand(
		newQuotaResetCommand(),
		newQuotaStatusCommand(),
		newQuotaAdjustCommand(),
		newQuotaSetLimitCommand(),
	)
	return quotaCmd
}

func newQuotaResetCommand() *cobra.Command {
	var nowFlag string

	command := &cobra.Command{
		Use:   "reset",
		Short: "Run one quota reset pass over every account that is due",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			if nowFlag != "" {
				parsed, err := time.Parse(time.RFC3339, nowFlag)
				if err != nil {
					return fmt.Errorf("invalid --now %q: %w", nowFlag, err)
				}
				now = parsed.UTC()
			}

			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Services.ResetRunner.RunReset(cmd.Context(), now)
			if err != nil {
				return fmt.Errorf("RunReset() > %w", err)
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	command.Flags().StringVar(&nowFlag, "now", "", "evaluate due accounts as of this RFC3339 instant")
	return command
}

func newQuotaStatusCommand() *cobra.Command {
	var userFlag string

	command := &cobra.Command{
		Use:   "status",
		Short: "Print a user's buckets",
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

			status, err := a.Services.Ledger.Status(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	command.Flags().StringVar(&userFlag, "user", "", "user id")
	_ = command.MarkFlagRequired("user")
	return command
}

func newQuotaAdjustCommand() *cobra.Command {
	var (
		userFlag   string
		bucketFlag string
		delta      int
		note       string
	)

	command := &cobra.Command{
		Use:   "adjust",
		Short: "Add to (or with a negative delta, give back) a user's usage in one bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, bucket, err := parseAccountFlags(userFlag, bucketFlag)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			acct, err := a.Services.Ledger.Adjust(cmd.Context(), userID, bucket, delta, note)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), acct)
		},
	}
	flags := command.Flags()
	flags.StringVar(&userFlag, "user", "", "user id")
	flags.StringVar(&bucketFlag, "bucket", string(quota.BucketLearningInteractions), "bucket name")
	flags.IntVar(&delta, "delta", 0, "usage delta")
	flags.StringVar(&note, "note", "", "audit note")
	_ = command.MarkFlagRequired("user")
	_ = command.MarkFlagRequired("delta")
	return command
}

func newQuotaSetLimitCommand() *cobra.Command {
	var (
		userFlag   string
		bucketFlag string
		limit      int
		note       string
	)

	command := &cobra.Command{
		Use:   "set-limit",
		Short: "Change a user's limit for one bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, bucket, err := parseAccountFlags(userFlag, bucketFlag)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			acct, err := a.Services.Ledger.SetLimit(cmd.Context(), userID, bucket, limit, note)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), acct)
		},
	}
	flags := command.Flags()
	flags.StringVar(&userFlag, "user", "", "user id")
	flags.StringVar(&bucketFlag, "bucket", string(quota.BucketLearningInteractions), "bucket name")
	flags.IntVar(&limit, "limit", 0, "new limit")
	flags.StringVar(&note, "note", "", "audit note")
	_ = command.MarkFlagRequired("user")
	_ = command.MarkFlagRequired("limit")
	return command
}

func parseAccountFlags(user, bucket string) (uuid.UUID, quota.Bucket, error) {
	userID, err := uuid.Parse(user)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid --user: %w", err)
	}
	b := quota.Bucket(bucket)
	if !b.Valid() {
		return uuid.Nil, "", fmt.Errorf("unknown bucket %q", bucket)
	}
	return userID, b, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
