package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/ghprofile/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/ghprofile.yaml
var configTemplate embed.FS

const templatePath = "templates/ghprofile.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a ghprofile configuration file",
		Long: `Init writes a commented .ghprofile configuration file.

The file holds defaults for the update command: username, README location,
commit messages and Tor addresses. It never holds the API token.

Examples:
  # Create .ghprofile in the current directory
  ghprofile init

  # Create the file in the XDG config directory
  ghprofile init --xdg

  # Overwrite an existing file
  ghprofile init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().Bool("xdg", false,
		"Write the file to the XDG config directory instead of --output")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	useXDG, err := cmd.Flags().GetBool("xdg")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if useXDG {
		outputPath = config.XDGConfigFile()
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nSet your username there, then export GHPROFILE_TOKEN and run:")
	fmt.Fprintln(out, "  ghprofile update --bio \"Hello\" --readme README.md")
	return nil
}
