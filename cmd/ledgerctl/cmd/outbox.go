package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "outbox 消息运维",
}

var outboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "各状态消息数",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		counts, err := a.outboxRepo.CountByStatus(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, counts)
	}),
}

var outboxRequeueCmd = &cobra.Command{
	Use:   "requeue [id]...",
	Short: "把投递失败的消息放回队列，不指定 id 时处理全部",
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		n, err := a.outboxRepo.Requeue(cmd.Context(), ids)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]int64{"requeued": n})
	}),
}

func init() {
	outboxCmd.AddCommand(outboxStatsCmd, outboxRequeueCmd)
	rootCmd.AddCommand(outboxCmd)
}
