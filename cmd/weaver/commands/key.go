package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/lucid-weaver/backend/internal/credential"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the stored Gemini API key",
}

var keySetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Store the API key used for every request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		holder, err := openHolder(cmd)
		if err != nil {
			return err
		}
		if err := holder.Set(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s key stored (%s)\n", successStyle.Render("✓"), holder.Current().Masked())
		return nil
	},
}

var keyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		holder, err := openHolder(cmd)
		if err != nil {
			return err
		}
		if err := holder.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s key removed\n", successStyle.Render("✓"))
		return nil
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the key in effect, masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		holder, err := openHolder(cmd)
		if err != nil {
			return err
		}
		cred := holder.Current()
		if cred.Empty() {
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("no key configured"))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), cred.Masked())
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keySetCmd, keyClearCmd, keyShowCmd)
	rootCmd.AddCommand(keyCmd)
}

// openHolder restores the credential without building the rest of the app.
func openHolder(cmd *cobra.Command) (*credential.Holder, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	holder := credential.NewHolder(credential.NewBoltStore(cfg.Storage.CredentialPath()))
	if err := holder.Restore(cmd.Context(), credential.Credential(cfg.Gemini.APIKey)); err != nil {
		return nil, err
	}
	return holder, nil
}
