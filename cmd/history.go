package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history <product-id>",
		Short: "Print every recorded price for a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			product, err := a.Store.Product(cmd.Context(), productID)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			history, err := a.Store.PriceHistory(cmd.Context(), productID)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"product": product, "prices": history})
			}

			symbol := a.Config.Notify.CurrencySymbol
			fmt.Fprintf(out, "%s (%s)\n", product.Name, product.URL)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "OBSERVED\tPRICE\tPREVIOUS")
			for _, obs := range history {
				previous := "-"
				if obs.PreviousPrice.Valid {
					previous = symbol + obs.PreviousPrice.Decimal.StringFixed(2)
				}
				fmt.Fprintf(tw, "%s\t%s%s\t%s\n",
					obs.ObservedAt.Format("2006-01-02 15:04"), symbol, obs.Price.StringFixed(2), previous)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
