package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/garyjia/expense-router/internal/container"
	"github.com/garyjia/expense-router/internal/domain/entity"
	"github.com/garyjia/expense-router/internal/domain/routing"
)

var (
	routeAmount   float64
	routeCurrency string
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Show which rule and approver roles an amount is routed to",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		converter, err := container.ProvideConverter(&cfg.Currency)
		if err != nil {
			return err
		}
		router, err := container.ProvideRouter(&cfg.Routing)
		if err != nil {
			return err
		}

		currency := routeCurrency
		if currency == "" {
			currency = converter.ReportingCurrency()
		}
		converted, err := converter.Convert(routeAmount, currency)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Amount:    %.2f %s (%.2f %s)\n", routeAmount, strings.ToUpper(currency), converted, converter.ReportingCurrency())

		rule, err := router.SelectRule(converted)
		var noMatch *routing.NoMatchingRuleError
		if errors.As(err, &noMatch) && cfg.Routing.FallbackRuleID != "" {
			rule, _ = router.Rule(cfg.Routing.FallbackRuleID)
			fmt.Fprintln(out, "Fallback:  yes")
		} else if err != nil {
			return err
		}

		fmt.Fprintf(out, "Rule:      %s (%s)\n", rule.ID, rule.Name)
		fmt.Fprintf(out, "Approvers: %s\n", joinRoles(rule.ApproverRoles))
		fmt.Fprintf(out, "Flagged:   %t\n", converted > router.FlagThreshold())
		return nil
	},
}

func init() {
	routeCmd.Flags().Float64VarP(&routeAmount, "amount", "a", 0, "expense amount")
	routeCmd.Flags().StringVar(&routeCurrency, "currency", "", "ISO 4217 currency code (default: reporting currency)")
	_ = routeCmd.MarkFlagRequired("amount")
	rootCmd.AddCommand(routeCmd)
}

func joinRoles(roles []entity.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = fmt.Sprintf("%d:%s", i+1, r)
	}
	return strings.Join(names, " -> ")
}
