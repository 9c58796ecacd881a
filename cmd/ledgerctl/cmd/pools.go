package cmd

import (
	"mallledger/internal/model"

	"github.com/spf13/cobra"
)

var poolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "查看资金池余额",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		pools, err := a.svc.Pools.ListPools(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, pools)
	}),
}

var clearPoolsCmd = &cobra.Command{
	Use:   "clear-pools <pool>...",
	Short: "清空资金池，余额转入公司积分池",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		kinds := make([]model.PoolKind, 0, len(args))
		for _, arg := range args {
			kinds = append(kinds, model.PoolKind(arg))
		}
		result, err := a.svc.Pools.ClearPools(cmd.Context(), kinds, operator)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	}),
}

func init() {
	rootCmd.AddCommand(poolsCmd, clearPoolsCmd)
}
