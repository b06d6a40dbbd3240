package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mediastudio/config"
	"mediastudio/generation"
	"mediastudio/store"
)

func newGalleryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Inspect and manage generated media",
	}

	var filter store.Filter
	list := &cobra.Command{
		Use:   "list",
		Short: "List gallery items, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(_ *config.Config, st *store.Store, _ *generation.Service) error {
				items, err := st.ListItems(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Gallery is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderGallery(items))
				return nil
			})
		},
	}
	list.Flags().StringVarP(&filter.Type, "type", "t", "", "Only show image or video items")
	list.Flags().IntVarP(&filter.Limit, "limit", "n", 50, "Maximum number of items (0 for all)")

	remove := &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete gallery items and their local copies",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(_ *config.Config, _ *store.Store, svc *generation.Service) error {
				for _, id := range args {
					if err := svc.Delete(cmd.Context(), id); err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, remove)
	return cmd
}

func renderGallery(items []*store.MediaItem) string {
	headers := []string{"ID", "Type", "Provider", "Model", "Size", "Prompt", "Created"}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		size := ""
		if item.Width > 0 && item.Height > 0 {
			size = strconv.Itoa(item.Width) + "x" + strconv.Itoa(item.Height)
		}
		rows = append(rows, []string{
			item.ID,
			item.Type,
			item.Provider,
			item.Model,
			size,
			truncate(item.Prompt, 40),
			item.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
