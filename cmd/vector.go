package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/research"
)

func vectorCMD() *cobra.Command {
	var cfgPath string
	var limit int
	var threshold float64

	var cmd = &cobra.Command{
		Use:   "vector [query]",
		Short: "Search stored sources by embedding similarity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			svc, st, err := buildService(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer st.DB.Close()

			res, err := svc.VectorSearch(cmd.Context(), strings.Join(args, " "), research.VectorOptions{
				Limit:     limit,
				Threshold: threshold,
			})
			if err != nil {
				return err
			}

			fmt.Printf("%d matches for %q\n\n", res.TotalFound, res.Query)
			for _, r := range res.Results {
				fmt.Printf("%.3f  %s\n      %s\n", r.Similarity, r.Title, r.URL)
				if r.Summary != "" {
					fmt.Printf("      %s\n", r.Summary)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "maximum matches to return")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.5, "minimum cosine similarity")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
