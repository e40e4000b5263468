package commands

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"shop-service/models"
)

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Show or change the cart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, err := newClient().FetchCart(cmd.Context())
		if err != nil {
			return err
		}
		return renderCart(cmd, lines)
	},
}

var cartSetCmd = &cobra.Command{
	Use:   "set <product-id> <quantity>",
	Short: "Set the quantity of a product in the cart",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		lines, err := newClient().SetCartItem(cmd.Context(), args[0], qty)
		if err != nil {
			return err
		}
		return renderCart(cmd, lines)
	},
}

var cartRemoveCmd = &cobra.Command{
	Use:   "remove <product-id>",
	Short: "Remove a product from the cart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, err := newClient().RemoveCartItem(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return renderCart(cmd, lines)
	},
}

var cartClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the cart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().ClearCart(cmd.Context()); err != nil {
			return err
		}
		return renderCart(cmd, []models.CartLine{})
	},
}

func renderCart(cmd *cobra.Command, lines []models.CartLine) error {
	return render(cmd.OutOrStdout(), models.CartResponse{Items: lines}, func(tw *tabwriter.Writer) {
		if len(lines) == 0 {
			fmt.Fprintln(tw, "Cart is empty")
			return
		}
		fmt.Fprintln(tw, "PRODUCT\tNAME\tQTY\tPRICE")
		for _, l := range lines {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", l.Product.ID, l.Product.Name, l.Quantity, l.Product.Price.StringFixed(2))
		}
	})
}

func init() {
	rootCmd.AddCommand(cartCmd)
	cartCmd.AddCommand(cartSetCmd, cartRemoveCmd, cartClearCmd)
}
