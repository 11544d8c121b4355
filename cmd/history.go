package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/wentf9/xdeploy/internal/storage"
)

type HistoryOptions struct {
	Recipe string
	Limit  int
}

func NewCmdHistory() *cobra.Command {
	o := &HistoryOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "查看配方执行历史",
		Long:  `查看保存在 MySQL 中的配方执行历史, 需要在配置中开启 history.enabled。`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run(cmd)
		},
	}
	cmd.Flags().StringVar(&o.Recipe, "recipe", "", "只显示指定配方")
	cmd.Flags().IntVarP(&o.Limit, "limit", "n", 20, "显示的条数")
	return cmd
}

func (o *HistoryOptions) Run(cmd *cobra.Command) error {
	s, err := rootOpts.Settings()
	if err != nil {
		return err
	}
	if !s.History.Enabled {
		return fmt.Errorf("执行历史未开启")
	}
	db, err := storage.InitMySQL(s.MySQL)
	if err != nil {
		return err
	}
	defer storage.CloseMySQL(db)

	records, err := storage.Recent(cmd.Context(), db, o.Recipe, o.Limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRECIPE\tROLES\tSTATUS\tOPERATOR\tSTARTED\tDURATION\tERROR")
	for _, r := range records {
		roles, _ := r.Roles.V.([]any)
		names := make([]string, 0, len(roles))
		for _, role := range roles {
			names = append(names, fmt.Sprint(role))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%v\t%s\n",
			r.ID, r.Recipe, dash(strings.Join(names, ",")), r.Status, dash(r.Operator),
			r.StartedAt.Local().Format(time.DateTime), r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
			firstLine(r.Error))
	}
	return w.Flush()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
