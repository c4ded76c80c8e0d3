package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Dahimi/File-Search-POC/internal/dealroom"
	"github.com/Dahimi/File-Search-POC/internal/stores"
)

var listCounts bool

func init() {
	rootCmd.AddCommand(storesCmd)
	storesCmd.AddCommand(storesListCmd, storesCreateCmd, storesDeleteCmd, storesInfoCmd)
	storesListCmd.Flags().BoolVar(&listCounts, "counts", false, "fetch fresh document counts for every store")
}

var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "Manage document stores",
}

var storesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stores",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		list, err := a.Service.ListStores(ctx)
		if err != nil {
			return err
		}

		if len(list) == 0 {
			fmt.Println("No stores found.")
			return nil
		}

		if listCounts {
			if list, err = refreshCounts(ctx, a.Service, list); err != nil {
				return err
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tACTIVE\tPENDING\tFAILED")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", stores.ShortID(s.ID), s.Label(), s.Active, s.Pending, s.Failed)
		}
		return w.Flush()
	},
}

// refreshCounts fetches every store concurrently, keeping list order.
func refreshCounts(ctx context.Context, service *dealroom.Service, list []stores.Store) ([]stores.Store, error) {
	out := make([]stores.Store, len(list))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, s := range list {
		i, s := i, s
		g.Go(func() error {
			info, err := service.StoreInfo(ctx, s.ID)
			if err != nil {
				return err
			}
			out[i] = *info
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

var storesCreateCmd = &cobra.Command{
	Use:   "create <display-name>",
	Short: "Create a store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		store, err := a.Service.CreateStore(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		successColor.Printf("Created store %s\n", store.Label())
		fmt.Printf("ID: %s\n", store.ID)
		return nil
	},
}

var storesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a store with all its documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service.DeleteStore(cmd.Context(), args[0]); err != nil {
			return err
		}

		successColor.Printf("Deleted store %s\n", stores.NormalizeID(args[0]))
		return nil
	},
}

var storesInfoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show store details and document counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		store, err := a.Service.StoreInfo(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		printStore(os.Stdout, store)
		return nil
	},
}
