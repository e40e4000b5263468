package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var promoCmd = &cobra.Command{
	Use:   "promo <code>",
	Short: "Check a promotion code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient().ApplyPromotion(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), res, func(tw *tabwriter.Writer) {
			if !res.Valid {
				fmt.Fprintln(tw, res.Message)
				return
			}
			fmt.Fprintf(tw, "%s\t%d%% off\n", res.Promotion.Code, res.Promotion.DiscountPercent)
			if res.Promotion.ExpiryDate != nil {
				fmt.Fprintf(tw, "Expires:\t%s\n", res.Promotion.ExpiryDate.Format("2006-01-02"))
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(promoCmd)
}
