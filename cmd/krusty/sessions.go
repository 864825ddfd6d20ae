package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"krusty/internal/chat"
	"krusty/internal/client"
	"krusty/internal/config"
	"krusty/internal/engine"
)

func openStore() (*chat.FileStore, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	dataDir, err := config.DataDir(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := chat.NewFileStore(dataDir)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			infos, err := store.List()
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("no saved sessions")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTURNS\tUPDATED\tWORKDIR")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
					info.ID, info.TurnCount,
					info.UpdatedAt.Format("2006-01-02 15:04"), info.WorkDir)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted session %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete sessions past the configured age and count limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			removed := store.Prune(cfg.Session.MaxSessionAge, cfg.Session.MaxSessionCount)
			fmt.Printf("pruned %d session(s)\n", removed)
			return nil
		},
	})

	return cmd
}

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact <id>",
		Short: "Compress a saved session into a fresh summarized one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			session, err := store.Load(args[0])
			if err != nil {
				return err
			}

			c, err := client.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			compressor := engine.NewCompressor(c, store)
			fresh, err := compressor.Compress(context.Background(), session)
			if err != nil {
				return err
			}
			fmt.Printf("compressed %s (%d turns) into %s\n",
				session.ID, session.TurnCount(), fresh.ID)
			return nil
		},
	}
}
