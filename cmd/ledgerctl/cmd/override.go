package cmd

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	overrideValue     string
	overrideAutoClear bool
	overrideClear     bool
)

var overrideCmd = &cobra.Command{
	Use:   "override <job>",
	Short: "设置周补贴积分价值或月度分红单位金额的人工干预值",
	Example: `  ledgerctl override subsidy --value 0.001 --auto-clear
  ledgerctl override unilevel --clear`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		var value *decimal.Decimal
		if !overrideClear {
			v, err := decimal.NewFromString(overrideValue)
			if err != nil {
				return err
			}
			value = &v
		}
		var autoClear *bool
		if cmd.Flags().Changed("auto-clear") {
			autoClear = &overrideAutoClear
		}

		o, err := a.svc.Overrides.AdjustManualOverride(cmd.Context(), args[0], value, autoClear, operator)
		if err != nil {
			return err
		}
		return printJSON(cmd, o)
	}),
}

func init() {
	overrideCmd.Flags().StringVar(&overrideValue, "value", "", "干预值")
	overrideCmd.Flags().BoolVar(&overrideAutoClear, "auto-clear", false, "执行一次后自动清除")
	overrideCmd.Flags().BoolVar(&overrideClear, "clear", false, "清除干预值")
	overrideCmd.MarkFlagsMutuallyExclusive("value", "clear")
	overrideCmd.MarkFlagsOneRequired("value", "clear")
	rootCmd.AddCommand(overrideCmd)
}
