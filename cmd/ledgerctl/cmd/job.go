package cmd

import (
	"github.com/spf13/cobra"
)

var force bool

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "定时任务",
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出已注册的任务",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		return printJSON(cmd, a.scheduler.Jobs())
	}),
}

var jobRunCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "立即执行一次任务",
	Long: `立即执行指定任务，例如 subsidy（周补贴）、unilevel（月度分红）、
coupon_expiry（优惠券过期）、director（荣誉董事晋升）。
同一周期已执行过的任务会被拒绝，--force 可以跳过周期检查。`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		result, err := a.scheduler.Trigger(cmd.Context(), args[0], force)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	}),
}

func init() {
	jobRunCmd.Flags().BoolVar(&force, "force", false, "忽略本周期已执行的记录")
	jobCmd.AddCommand(jobListCmd, jobRunCmd)
	rootCmd.AddCommand(jobCmd)
}
