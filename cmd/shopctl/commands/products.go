package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"shop-service/models"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List products",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		products, err := newClient().FetchProducts(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), products, func(tw *tabwriter.Writer) {
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK")
			for _, p := range products {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Category, p.Price.StringFixed(2), p.StockQuantity)
			}
		})
	},
}

var productCmd = &cobra.Command{
	Use:   "product <id>",
	Short: "Show a product and its reviews",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		p, err := c.FetchProduct(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		reviews, err := c.FetchReviews(cmd.Context(), p.ID)
		if err != nil {
			return err
		}
		out := struct {
			*models.Product
			Reviews []models.Review `json:"reviews"`
		}{p, reviews}
		return render(cmd.OutOrStdout(), out, func(tw *tabwriter.Writer) {
			fmt.Fprintf(tw, "%s\t%s\n", p.Name, p.Price.StringFixed(2))
			fmt.Fprintf(tw, "Category:\t%s\n", p.Category)
			fmt.Fprintf(tw, "In stock:\t%d\n", p.StockQuantity)
			for _, rv := range reviews {
				fmt.Fprintf(tw, "%d/5\t%s\n", rv.Rating, rv.Comment)
			}
		})
	},
}

var (
	reviewRating  int
	reviewComment string
)

var reviewCmd = &cobra.Command{
	Use:   "review <product-id>",
	Short: "Review a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rv, err := newClient().SubmitReview(cmd.Context(), args[0], reviewRating, reviewComment)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), rv, func(tw *tabwriter.Writer) {
			fmt.Fprintf(tw, "Review %s saved (verified purchase: %t)\n", rv.ID, rv.Verified)
		})
	},
}

func init() {
	rootCmd.AddCommand(productsCmd, productCmd, reviewCmd)

	reviewCmd.Flags().IntVar(&reviewRating, "rating", 5, "Rating from 1 to 5")
	reviewCmd.Flags().StringVar(&reviewComment, "comment", "", "Review text")
	_ = reviewCmd.MarkFlagRequired("comment")
}
