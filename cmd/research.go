package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/research"
)

func researchCMD() *cobra.Command {
	var cfgPath string
	var advanced bool
	var embeddings bool
	var maxSources int
	var save bool
	var output string

	var cmd = &cobra.Command{
		Use:   "research [query]",
		Short: "Run a deep research session for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			query := strings.Join(args, " ")

			svc, st, err := buildService(cmd.Context(), cfg, save)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.DB.Close()
			}

			res, err := svc.PerformDeepSearch(cmd.Context(), query, research.Options{
				UseAdvancedSearch:  advanced,
				GenerateEmbeddings: embeddings,
				MaxSources:         maxSources,
				SaveToDatabase:     save,
			})
			if err != nil {
				return err
			}

			fmt.Printf("session: %s\n", res.SessionID)
			fmt.Printf("terms:   %s\n", strings.Join(res.SearchTerms, ", "))
			fmt.Printf("sources: %d scraped, %d analyzed\n\n", res.WebResults, len(res.Analyses))

			if output != "" {
				if err := os.WriteFile(output, []byte(res.Report.Content), 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Printf("report written to %s\n", output)
				return nil
			}
			fmt.Println(res.Report.Content)
			return nil
		},
	}
	cmd.Flags().BoolVar(&advanced, "advanced", false, "fan the first term out across search dorks")
	cmd.Flags().BoolVar(&embeddings, "embeddings", false, "generate embeddings for relevant sources")
	cmd.Flags().IntVar(&maxSources, "max-sources", 0, "result budget (0 = config default)")
	cmd.Flags().BoolVar(&save, "save", false, "persist the session to postgres")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a file instead of stdout")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
