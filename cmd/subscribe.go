package cmd

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newSubscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <product-id> <webhook-url>",
		Short: "Send a product's price notifications to a webhook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			endpoint, err := parseWebhook(args[1])
			if err != nil {
				return err
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Store.AddSubscription(cmd.Context(), productID, endpoint); err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "subscribed to product %d\n", productID)
			return nil
		},
	}
}

func parseProductID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid product id %q", raw)
	}
	return id, nil
}

func parseWebhook(raw string) (string, error) {
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", fmt.Errorf("invalid webhook url %q", raw)
	}
	return u.String(), nil
}
