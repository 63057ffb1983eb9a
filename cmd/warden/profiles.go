package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/profile"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List learned mode duration profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagEnvFile)
		if err != nil {
			return err
		}

		store, err := profile.NewStore(profile.DefaultStoreConfig(cfg.DataDir))
		if err != nil {
			return fmt.Errorf("failed to open profile store: %w", err)
		}
		defer store.Close()

		profiles, err := store.LoadAll()
		if err != nil {
			return fmt.Errorf("failed to load profiles: %w", err)
		}
		if len(profiles) == 0 {
			fmt.Println("No profiles recorded yet.")
			return nil
		}

		sort.Slice(profiles, func(i, j int) bool {
			return profiles[i].Key() < profiles[j].Key()
		})

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tSAMPLES\tMEAN\tSTD\tP95\tP99\tTREND")
		for _, p := range profiles {
			fmt.Fprintf(w, "%s\t%d\t%.1fs\t%.1fs\t%.1fs\t%.1fs\t%s\n",
				p.Key(), p.SampleCount, p.Mean, p.Std, p.P95, p.P99, p.Trend)
		}
		return w.Flush()
	},
}
