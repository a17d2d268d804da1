package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mmynk/receiptsplit/internal/calculator"
	"github.com/mmynk/receiptsplit/internal/draft"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
)

func newSplitCmd(load configLoader) *cobra.Command {
	var (
		total        string
		currency     string
		fee          string
		participants []string
	)

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split a bill evenly and convert each share",
		Example: `  receiptsplit split --total 100 --currency USD --fee 3 \
    --participant alice:USD --participant bob:EUR`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			currencies, err := cfg.Rates.CurrencySet()
			if err != nil {
				return err
			}

			req, err := buildSplitRequest(total, currency, fee, participants)
			if err != nil {
				return err
			}
			splitter := calculator.NewSplitter(newConverter(cfg, nil), currencies)
			outcome, err := splitter.Split(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printSplit(cmd.OutOrStdout(), outcome)
		},
	}

	cmd.Flags().StringVar(&total, "total", "", "bill total")
	cmd.Flags().StringVar(&currency, "currency", string(money.USD), "bill currency")
	cmd.Flags().StringVar(&fee, "fee", "0", "payer card fee percentage")
	cmd.Flags().StringArrayVarP(&participants, "participant", "p", nil, "participant as name[:CURRENCY] (repeatable)")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}

func newConvertCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:     "convert AMOUNT FROM TO",
		Short:   "Convert an amount between currencies",
		Example: "  receiptsplit convert 100 USD EUR",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return models.NewValidationError("amount", "invalid amount %q", args[0])
			}
			currencies, err := cfg.Rates.CurrencySet()
			if err != nil {
				return err
			}
			from, err := supportedCurrency(currencies, "from", args[1])
			if err != nil {
				return err
			}
			to, err := supportedCurrency(currencies, "to", args[2])
			if err != nil {
				return err
			}

			conv := newConverter(cfg, nil)
			rate, err := conv.Rate(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s %s (rate %s)\n",
				amount.StringFixed(money.Cents), from,
				money.Round(amount.Mul(rate)).StringFixed(money.Cents), to,
				rate.String(),
			)
			return nil
		},
	}
}

func newTotalsCmd(load configLoader) *cobra.Command {
	var (
		items    []string
		currency string
		tax      string
		tip      string
		ccFee    string
	)

	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Compute receipt subtotal and total",
		Example: `  receiptsplit totals --item "Coffee:3.50:2" --item "Muffin:2.25" \
    --tax 0.50 --tip 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			currencies, err := cfg.Rates.CurrencySet()
			if err != nil {
				return err
			}
			code, err := supportedCurrency(currencies, "currency", currency)
			if err != nil {
				return err
			}

			d := draft.New(code)
			for _, raw := range items {
				name, price, quantity := parseItemFlag(raw)
				if _, err := d.AddItem(name, price, quantity); err != nil {
					return fmt.Errorf("item %q: %w", raw, err)
				}
			}
			if err := d.SetCharges(tax, tip, ccFee); err != nil {
				return err
			}
			return printTotals(cmd.OutOrStdout(), d.Items(), calculator.RoundTotals(d.Totals()))
		},
	}

	cmd.Flags().StringArrayVarP(&items, "item", "i", nil, "item as name:price[:quantity] (repeatable)")
	cmd.Flags().StringVar(&currency, "currency", string(money.USD), "receipt currency")
	cmd.Flags().StringVar(&tax, "tax", "", "tax amount")
	cmd.Flags().StringVar(&tip, "tip", "", "tip amount")
	cmd.Flags().StringVar(&ccFee, "cc-fee", "", "credit card fee amount")
	return cmd
}

func buildSplitRequest(total, currency, fee string, participants []string) (calculator.SplitRequest, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(total))
	if err != nil {
		return calculator.SplitRequest{}, models.NewValidationError("total", "invalid total %q", total)
	}
	feePct := decimal.Zero
	if strings.TrimSpace(fee) != "" {
		if feePct, err = decimal.NewFromString(strings.TrimSpace(fee)); err != nil {
			return calculator.SplitRequest{}, models.NewValidationError("fee", "invalid fee %q", fee)
		}
	}

	source := money.Normalize(currency)
	req := calculator.SplitRequest{
		TotalAmount:   amount,
		Currency:      source,
		FeePercentage: feePct,
		Participants:  make([]models.Participant, len(participants)),
	}
	for i, raw := range participants {
		req.Participants[i] = parseParticipantFlag(raw, i, source)
	}
	return req, nil
}

// supportedCurrency normalizes code and rejects it unless it is in currencies.
func supportedCurrency(currencies *money.Set, field, code string) (money.Currency, error) {
	c := money.Normalize(code)
	if !currencies.Contains(c) {
		return "", models.NewValidationError(field, "unsupported currency %q", c)
	}
	return c, nil
}

// parseParticipantFlag reads name[:CURRENCY]. Without a currency the
// participant pays in the bill currency.
func parseParticipantFlag(raw string, index int, fallback money.Currency) models.Participant {
	name, code, found := strings.Cut(raw, ":")
	name = strings.TrimSpace(name)
	preferred := fallback
	if found && strings.TrimSpace(code) != "" {
		preferred = money.Normalize(code)
	}
	return models.Participant{
		ID:                fmt.Sprintf("p%d", index+1),
		DisplayName:       name,
		PreferredCurrency: preferred,
	}
}

// parseItemFlag reads name:price[:quantity]. The name may not contain ':'.
func parseItemFlag(raw string) (name, price, quantity string) {
	parts := strings.SplitN(raw, ":", 3)
	name = parts[0]
	if len(parts) > 1 {
		price = parts[1]
	}
	if len(parts) > 2 {
		quantity = parts[2]
	}
	return name, price, quantity
}

func printSplit(w io.Writer, outcome *models.SplitOutcome) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total\t%s %s\n", outcome.OriginalAmount.StringFixed(money.Cents), outcome.SourceCurrency)
	if !outcome.CardFeePercentage.IsZero() {
		fmt.Fprintf(tw, "With %s%% card fee\t%s %s\n",
			outcome.CardFeePercentage.String(), outcome.TotalWithFee.StringFixed(money.Cents), outcome.SourceCurrency)
	}
	fmt.Fprintln(tw)
	for _, s := range outcome.Splits {
		fmt.Fprintf(tw, "%s\t%s %s\n", s.DisplayName, s.AmountOwed.StringFixed(money.Cents), s.Currency)
	}
	return tw.Flush()
}

func printTotals(w io.Writer, items []models.LineItem, totals models.Totals) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%d x %s\t%s\t\n",
			item.Name, item.Quantity, item.UnitPrice.StringFixed(money.Cents), item.Subtotal().StringFixed(money.Cents))
	}
	fmt.Fprintf(tw, "Subtotal\t\t%s\t\n", totals.Subtotal.StringFixed(money.Cents))
	fmt.Fprintf(tw, "Tax\t\t%s\t\n", totals.Tax.StringFixed(money.Cents))
	fmt.Fprintf(tw, "Tip\t\t%s\t\n", totals.Tip.StringFixed(money.Cents))
	fmt.Fprintf(tw, "Card fee\t\t%s\t\n", totals.CCFee.StringFixed(money.Cents))
	fmt.Fprintf(tw, "Total\t\t%s\t\n", totals.Total.StringFixed(money.Cents))
	return tw.Flush()
}
