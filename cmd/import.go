package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <url>",
		Short: "Start tracking the product at a storefront URL",
		Long: `Fetches the product page, extracts its title, description, edition, platform
and image, stores the image, and adds the product to the tracked set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			tracked, err := a.Importer.Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported product %d: %s\n", tracked.ProductID, tracked.Name)
			return nil
		},
	}
}
