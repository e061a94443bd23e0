package cli

import (
	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/matzehuels/heapview/pkg/theme"
)

func (c *CLI) themeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "theme",
		Short: "Inspect and check diagram themes",
	}
	cmd.AddCommand(c.themeDefaultCommand())
	cmd.AddCommand(c.themeCheckCommand())
	return cmd
}

// themeDefaultCommand prints the built-in theme as TOML, a starting point
// for --theme files.
func (c *CLI) themeDefaultCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "default",
		Short: "Print the built-in theme as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(theme.Default())
		},
	}
}

func (c *CLI) themeCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <theme.toml>",
		Short: "Validate a theme file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			th, err := theme.Load(args[0])
			if err != nil {
				return err
			}
			c.Logger.Debug("theme loaded", "path", args[0], "mode", th.Layout.Mode, "font", th.Fonts.Family)
			printSuccess("Theme %s is valid", args[0])
			return nil
		},
	}
}
