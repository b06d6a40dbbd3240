package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediastudio/config"
	"mediastudio/generation"
	"mediastudio/providers"
	"mediastudio/store"
)

func newProvidersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers, their capabilities and whether a key is configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(_ *config.Config, _ *store.Store, svc *generation.Service) error {
				keys, err := svc.Keys(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderProviders(keys))
				return nil
			})
		},
	}
}

func renderProviders(keys providers.Keys) string {
	headers := []string{"Provider", "ID", "Key", "Media", "Models", "Configured"}
	var rows [][]string
	for _, info := range providers.Registry() {
		media := make([]string, 0, len(info.Capabilities))
		for _, c := range info.Capabilities {
			media = append(media, string(c))
		}
		models := make([]string, 0, len(info.Models))
		for _, m := range info.Models {
			models = append(models, m.Name)
		}
		configured := "no"
		if keys.Has(info.ID) {
			configured = "yes"
		}
		rows = append(rows, []string{
			info.DisplayName,
			string(info.ID),
			info.KeyName,
			strings.Join(media, ", "),
			strings.Join(models, "\n"),
			configured,
		})
	}
	return renderTable(headers, rows, nil)
}
