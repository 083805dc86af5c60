package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/store"
)

func sessionsCMD() *cobra.Command {
	var cfgPath string
	var limit int

	var cmd = &cobra.Command{
		Use:   "sessions [id]",
		Short: "List research sessions or show one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			st, err := store.New(cmd.Context(), cfg.Storage.Postgres)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer st.DB.Close()

			if len(args) == 1 {
				return showSession(cmd, st, args[0])
			}

			sessions, err := st.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, s := range sessions {
				fmt.Printf("%s  %-9s  %2d sources  %d reports  %s\n",
					s.ID, s.Status, s.SourceCount, s.ReportCount, s.Query)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum sessions to list")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}

func showSession(cmd *cobra.Command, st *store.Store, id string) error {
	detail, err := st.GetSession(cmd.Context(), id)
	if err != nil {
		return err
	}

	s := detail.Session
	fmt.Printf("session %s (%s)\nquery: %s\ncreated: %s\n\n", s.ID, s.Status, s.Query, s.CreatedAt)
	for _, src := range detail.Sources {
		fmt.Printf("  [r%3d c%3d] %s\n              %s\n", src.Relevance, src.Credibility, src.Title, src.URL)
	}
	for _, rep := range detail.Reports {
		fmt.Printf("\nreport %s (%d sources)\n\n%s\n", rep.ID, rep.SourceCount, rep.Content)
	}
	return nil
}
