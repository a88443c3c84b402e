package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/headscrape/internal/config"
)

//go:embed templates/headscrape.yaml
var configTemplate embed.FS

const templatePath = "templates/headscrape.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a headscrape.yaml configuration file",
		Long: `Init writes a commented headscrape.yaml to the current directory.

The template documents every option with its default value and shows how
to define proxy layers, including an embedded Tor layer. Proxy passwords
can be written as ${VARIABLES} and kept in a .env file next to the
configuration.

Examples:
  # Create headscrape.yaml in the current directory
  headscrape init

  # Create the file in the XDG config directory
  headscrape init -o ~/.config/headscrape/headscrape.yaml

  # Overwrite an existing file
  headscrape init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
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

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// The file may reference proxy credentials.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  - add profile URLs under targets")
	fmt.Fprintln(out, "  - define proxy_layers, or remove the examples to scrape directly")
	fmt.Fprintln(out, "  - run 'headscrape proxies check' to verify the proxies")

	return nil
}
