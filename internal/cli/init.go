package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"irmemo/internal/config"
)

func newInitCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Scaffold .irmemo/config.yml",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := initTarget(flags.configPath)
			if err != nil {
				return err
			}
			if err := config.Scaffold(target); err != nil {
				return fmt.Errorf("init failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
			return nil
		},
	}
}

// initTarget returns the config path to create: --config when given,
// otherwise .irmemo/config.yml under the working directory.
func initTarget(configPath string) (string, error) {
	if value := strings.TrimSpace(configPath); value != "" {
		abs, err := filepath.Abs(value)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		return abs, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return config.ConfigPath(wd), nil
}
