package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kernelproxy/internal/app"
)

func (c *CLI) newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <function> [--inputs json]",
		Short: "Run one operation through the daemon and print the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("inputs")
			local, _ := cmd.Flags().GetBool("local")
			inputs, err := app.ParseInputs(raw)
			if err != nil {
				return err
			}
			return c.app.Call(cmd.Context(), args[0], inputs, app.CallOptions{Local: local})
		},
	}
	cmd.Flags().StringP("inputs", "i", "", "Operation inputs as a JSON object")
	cmd.Flags().BoolP("local", "l", false, "Run in a fresh in-process worker instead of the daemon")
	return cmd
}

func (c *CLI) newFingerprintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fingerprint <function> [--inputs json]",
		Short: "Print the cache fingerprint of an operation request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("inputs")
			canonical, _ := cmd.Flags().GetBool("raw")
			inputs, err := app.ParseInputs(raw)
			if err != nil {
				return err
			}
			return c.app.Fingerprint(cmd.Context(), args[0], inputs, app.FingerprintOptions{Raw: canonical})
		},
	}
	cmd.Flags().StringP("inputs", "i", "", "Operation inputs as a JSON object")
	cmd.Flags().Bool("raw", false, "Print the canonical request string instead of the hash")
	return cmd
}
