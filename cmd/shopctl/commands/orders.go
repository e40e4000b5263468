package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"shop-service/client"
	"shop-service/models"
)

var (
	// Checkout flags
	shipAddress    string
	shipCity       string
	shipPostalCode string
	shipCountry    string
	phoneNumber    string
	paymentMethod  string
	shippingPrice  string
	promoCode      string
	idempotencyKey string
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Order the current cart",
	Long: `Order everything in the cart, optionally with a promotion code.

Pass --key to make a retry safe: a second checkout with the same key
returns the first order instead of placing another one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shipping, err := decimal.NewFromString(shippingPrice)
		if err != nil {
			return fmt.Errorf("invalid --shipping %q", shippingPrice)
		}
		ctx := cmd.Context()
		c := newClient()
		if _, err := c.FetchCart(ctx); err != nil {
			return err
		}
		if promoCode != "" {
			res, err := c.ApplyPromotion(ctx, promoCode)
			if err != nil {
				return err
			}
			if !res.Valid {
				return fmt.Errorf("promotion %s: %s", promoCode, res.Message)
			}
		}
		order, err := c.Checkout(ctx, client.CheckoutInput{
			ShippingAddress: models.ShippingAddress{
				Address:    shipAddress,
				City:       shipCity,
				PostalCode: shipPostalCode,
				Country:    shipCountry,
			},
			PhoneNumber:    phoneNumber,
			PaymentMethod:  models.PaymentMethod(paymentMethod),
			ShippingPrice:  shipping,
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			return err
		}
		return renderOrder(cmd, order)
	},
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List your orders",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		orders, err := newClient().FetchOrders(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), orders, func(tw *tabwriter.Writer) {
			fmt.Fprintln(tw, "ID\tSTATUS\tTOTAL\tPLACED")
			for _, o := range orders {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.ID, o.Status, o.TotalPrice.StringFixed(2), o.CreatedAt.Format("2006-01-02 15:04"))
			}
		})
	},
}

var orderCmd = &cobra.Command{
	Use:   "order <id>",
	Short: "Show one order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		order, err := newClient().FetchOrder(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return renderOrder(cmd, order)
	},
}

func renderOrder(cmd *cobra.Command, o *models.Order) error {
	return render(cmd.OutOrStdout(), o, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Order:\t%s\n", o.ID)
		fmt.Fprintf(tw, "Status:\t%s\n", o.Status)
		for _, it := range o.Items {
			fmt.Fprintf(tw, "  %s\tx%d\t%s\n", it.Name, it.Quantity, it.Price.StringFixed(2))
		}
		if o.PromotionCode != "" {
			fmt.Fprintf(tw, "Promotion:\t%s\t-%s\n", o.PromotionCode, o.DiscountPrice.StringFixed(2))
		}
		fmt.Fprintf(tw, "Shipping:\t%s\n", o.ShippingPrice.StringFixed(2))
		fmt.Fprintf(tw, "Total:\t%s\n", o.TotalPrice.StringFixed(2))
	})
}

func init() {
	rootCmd.AddCommand(checkoutCmd, ordersCmd, orderCmd)

	f := checkoutCmd.Flags()
	f.StringVar(&shipAddress, "address", "", "Street address")
	f.StringVar(&shipCity, "city", "", "City")
	f.StringVar(&shipPostalCode, "postal-code", "", "Postal code")
	f.StringVar(&shipCountry, "country", "", "Country")
	f.StringVar(&phoneNumber, "phone", "", "Contact phone number")
	f.StringVar(&paymentMethod, "payment", string(models.PaymentCOD), "Payment method: creditCard, paypal or cod")
	f.StringVar(&shippingPrice, "shipping", "0", "Shipping price")
	f.StringVar(&promoCode, "promo", "", "Promotion code")
	f.StringVar(&idempotencyKey, "key", "", "Idempotency key for safe retries")
	for _, name := range []string{"address", "city", "postal-code", "country", "phone"} {
		_ = checkoutCmd.MarkFlagRequired(name)
	}
}
