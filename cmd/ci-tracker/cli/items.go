package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/davarch/ci-tracker/internal/api"
	"github.com/davarch/ci-tracker/internal/domain"
	"github.com/spf13/cobra"
)

var (
	itemsAddr string
	itemsJSON bool
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Inspect and edit the items of a running tracker",
}

func apiClient() (*api.Client, error) {
	if itemsAddr != "" {
		return api.NewClient(itemsAddr), nil
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.API.Listen == "" || cfg.API.Listen == "off" {
		return nil, fmt.Errorf("control API is disabled in %s", cfgPath)
	}
	return api.NewClient(cfg.API.Listen), nil
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cl, err := apiClient()
		if err != nil {
			return err
		}
		items, err := cl.Items(cmd.Context())
		if err != nil {
			return err
		}

		if itemsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}
		printItems(items)
		return nil
	},
}

var itemsAddCmd = &cobra.Command{
	Use:   "add <job-or-pipeline-url>",
	Short: "Track a job or pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cl, err := apiClient()
		if err != nil {
			return err
		}
		it, added, err := cl.Track(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !added {
			fmt.Printf("already tracked: %s\n", it.Key)
			return nil
		}
		fmt.Printf("tracking: %s (%s)\n", it.Key, it.Snapshot.Status)
		return nil
	},
}

var itemsRefreshCmd = &cobra.Command{
	Use:   "refresh <key>",
	Short: "Refetch one item now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cl, err := apiClient()
		if err != nil {
			return err
		}
		it, err := cl.Refresh(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", it.Key, it.Snapshot.Status)
		return nil
	},
}

var itemsRemoveCmd = &cobra.Command{
	Use:   "remove <key>",
	Short: "Stop tracking an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cl, err := apiClient()
		if err != nil {
			return err
		}
		if err := cl.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("removed: %s\n", args[0])
		return nil
	},
}

func printItems(items []domain.TrackedItem) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tSTATUS\tNAME\tREF\tSTATE\tAUTO")
	for _, it := range items {
		name := it.Snapshot.Name
		if it.Kind == domain.KindPipeline {
			name = fmt.Sprintf("pipeline #%d", it.Snapshot.ID)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
			it.Key, it.Snapshot.Status, name, it.Snapshot.Ref, it.State, it.AutoDiscovered)
	}
	_ = w.Flush()
}

func init() {
	itemsCmd.PersistentFlags().StringVar(&itemsAddr, "addr", "", "control API address (default: api.listen from config)")
	itemsListCmd.Flags().BoolVar(&itemsJSON, "json", false, "print JSON")

	itemsCmd.AddCommand(itemsListCmd, itemsAddCmd, itemsRefreshCmd, itemsRemoveCmd)
	rootCmd.AddCommand(itemsCmd)
}
