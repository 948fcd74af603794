package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-tutor/internal/services"
)

func newOutlineCommand() *cobra.Command {
	outlineCmd := &cobra.Command{
		Use:   "outline",
		Short: "Manage file outlines",
	}
	outlineCmd.AddCommand(newOutlineImportCommand())
	return outlineCmd
}

func newOutlineImportCommand() *cobra.Command {
	var (
		userFlag string
		fileFlag string
		path     string
	)

	command := &cobra.Command{
		Use:   "import",
		Short: "Import a topic outline for a file from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(userFlag)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			fileID, err := uuid.Parse(fileFlag)
			if err != nil {
				return fmt.Errorf("invalid --file-id: %w", err)
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open outline: %w", err)
			}
			defer f.Close()

			input, err := services.ParseOutlineYAML(f)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			topics, err := a.Services.Outline.ImportOutline(cmd.Context(), userID, fileID, input)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), topics)
		},
	}
	flags := command.Flags()
	flags.StringVar(&userFlag, "user", "", "owner user id")
	flags.StringVar(&fileFlag, "file-id", "", "uploaded file id")
	flags.StringVarP(&path, "file", "f", "", "outline YAML path")
	_ = command.MarkFlagRequired("user")
	_ = command.MarkFlagRequired("file-id")
	_ = command.MarkFlagRequired("file")
	return command
}
