package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediastudio/config"
	"mediastudio/generation"
	"mediastudio/providers"
	"mediastudio/store"
)

func newKeysCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage runtime API key overrides",
	}

	set := &cobra.Command{
		Use:   "set <provider> <key>",
		Short: "Store an API key for a provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := providers.ParseProviderID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(func(_ *config.Config, _ *store.Store, svc *generation.Service) error {
				if err := svc.SetKey(cmd.Context(), id, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored API key for %s\n", id)
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <provider>",
		Short: "Remove a stored API key; the configured key applies again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := providers.ParseProviderID(args[0])
			if err != nil {
				return err
			}
			return ctx.withService(func(_ *config.Config, _ *store.Store, svc *generation.Service) error {
				if err := svc.ClearKey(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared API key for %s\n", id)
				return nil
			})
		},
	}

	cmd.AddCommand(set, clearCmd)
	return cmd
}
