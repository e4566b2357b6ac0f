package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"irmemo/internal/config"
)

func newValidateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate .irmemo/config.yml",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolveConfigPath(flags.configPath)
			if err != nil {
				return err
			}
			if _, err := config.Load(path); err != nil {
				var validation *config.ValidationError
				if errors.As(err, &validation) {
					for _, issue := range validation.Issues {
						fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", issue)
					}
					return fmt.Errorf("%s has %d problem(s)", path, len(validation.Issues))
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config OK: %s\n", path)
			return nil
		},
	}
}
