package cmd

import (
	"fmt"
	"strings"

	"mallledger/internal/model"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var allocationCmd = &cobra.Command{
	Use:   "allocation",
	Short: "查看或调整订单分配比例",
}

var allocationGetCmd = &cobra.Command{
	Use:   "get",
	Short: "查看生效的分配比例",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		alloc, err := a.svc.Allocation.Effective(cmd.Context(), nil)
		if err != nil {
			return err
		}
		return printJSON(cmd, alloc)
	}),
}

var allocationSetCmd = &cobra.Command{
	Use:     "set <pool=ratio>...",
	Short:   "调整子池比例，子池合计不超过 0.20",
	Example: "  ledgerctl allocation set subsidy_pool=0.10 fund=0.035",
	Args:    cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ratios, err := parseRatios(args)
		if err != nil {
			return err
		}
		alloc, err := a.svc.Allocation.SetAllocation(cmd.Context(), ratios)
		if err != nil {
			return err
		}
		return printJSON(cmd, alloc)
	}),
}

func parseRatios(args []string) (map[model.PoolKind]decimal.Decimal, error) {
	ratios := make(map[model.PoolKind]decimal.Decimal, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("参数格式应为 pool=ratio: %s", arg)
		}
		ratio, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("比例格式错误 %s: %w", arg, err)
		}
		ratios[model.PoolKind(name)] = ratio
	}
	return ratios, nil
}

func init() {
	allocationCmd.AddCommand(allocationGetCmd, allocationSetCmd)
	rootCmd.AddCommand(allocationCmd)
}
