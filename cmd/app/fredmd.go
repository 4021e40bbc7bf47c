package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"FinDS/internal/domain/models"
	"FinDS/internal/services/alfred"
	"FinDS/internal/usecase"
	xhttp "FinDS/pkg/http"
	applogger "FinDS/pkg/logger"
)

func newFredMDCmd() *cobra.Command {
	var (
		kind    string
		vintage int
		kmax    int
	)
	cmd := &cobra.Command{
		Use:   "fredmd",
		Short: "Load a FRED-MD vintage, apply its transform codes and fit the EM factor model",
		Example: `  finds fredmd --vintage 202004
  finds fredmd --kind qd --vintage 202001 --kmax 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			lgr, err := applogger.New(&applogger.Config{Level: cfg.Logging.Level, Format: "console", Output: "stderr"})
			if err != nil {
				return err
			}

			loader := alfred.NewLoader(cfg.FredMD.URL, xhttp.NewClient(
				xhttp.WithTimeout(cfg.FredMD.Timeout),
				xhttp.WithRetries(cfg.FredMD.Retries, time.Second),
			))
			datasets := usecase.NewDatasetService(loader, nil, nil, 0, nil, lgr)
			recipes := usecase.NewRecipeService(nil, nil, 0, lgr)

			panel, err := datasets.FactorPanel(cmd.Context(), kind, vintage)
			if err != nil {
				return err
			}

			p := cfg.Factors.P
			res, err := recipes.FactorsEM(cmd.Context(), &models.FactorsEMRequest{
				Panel:   panel,
				Kmax:    kmax,
				P:       &p,
				MaxIter: cfg.Factors.MaxIter,
				Tol:     cfg.Factors.Tol,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s vintage %d: %d rows x %d series\n", kind, vintage, len(panel.Data), len(panel.Columns))
			for _, it := range res.History {
				fmt.Fprintf(out, "iter %3d  factors %2d  delta %.3e\n", it.Iter, it.Factors, it.Delta)
			}
			fmt.Fprintf(out, "converged=%t iterations=%d factors=%d\n", res.Converged, res.Iterations, res.Factors)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "md", "dataset kind: md (monthly) or qd (quarterly)")
	cmd.Flags().IntVar(&vintage, "vintage", 0, "vintage as YYYYMM; 0 loads current.csv")
	cmd.Flags().IntVar(&kmax, "kmax", 8, "maximum number of factors")
	return cmd
}
