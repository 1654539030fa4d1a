package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"Kavach/internal/di"
	"Kavach/pkg/config"
	"Kavach/pkg/util"

	"github.com/spf13/cobra"
)

type toolkitFactory func(cfg *config.Config) (*di.Toolkit, error)

func rootCmd(ctx context.Context, out io.Writer) *cobra.Command {
	return newRootCmd(ctx, out, di.InitializeToolkit)
}

func newRootCmd(ctx context.Context, out io.Writer, build toolkitFactory) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "kavachctl",
		Short:         "Query market data and the current regime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path")

	toolkit := func() (*di.Toolkit, error) {
		cfg, err := config.LoadWithEnv(configPath)
		if err != nil {
			return nil, err
		}
		return build(cfg)
	}

	root.AddCommand(pricesCmd(ctx, out, toolkit))
	root.AddCommand(regimeCmd(ctx, out, toolkit))
	return root
}

func pricesCmd(ctx context.Context, out io.Writer, toolkit func() (*di.Toolkit, error)) *cobra.Command {
	return &cobra.Command{
		Use:     "prices [tickers]",
		Short:   "Fetch latest prices through the provider chains",
		Example: "  kavachctl prices BTC-USD,GLD",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := toolkit()
			if err != nil {
				return err
			}
			raw := ""
			if len(args) == 1 {
				raw = args[0]
			}
			return writeJSON(out, tk.Prices.FetchLatestPrices(ctx, util.ParseTickers(raw)))
		},
	}
}

func regimeCmd(ctx context.Context, out io.Writer, toolkit func() (*di.Toolkit, error)) *cobra.Command {
	var risky, safe string
	cmd := &cobra.Command{
		Use:   "regime",
		Short: "Detect the current market regime",
		RunE: func(cmd *cobra.Command, args []string) error {
			tk, err := toolkit()
			if err != nil {
				return err
			}
			a := tk.Regime.Detect(ctx, strings.ToUpper(strings.TrimSpace(risky)), strings.ToUpper(strings.TrimSpace(safe)))
			return writeJSON(out, a)
		},
	}
	cmd.Flags().StringVar(&risky, "risky", "", "risky ticker (default from config)")
	cmd.Flags().StringVar(&safe, "safe", "", "safe ticker (default from config)")
	return cmd
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
