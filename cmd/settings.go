package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wentf9/xdeploy/cmd/utils"
	"github.com/wentf9/xdeploy/pkg/config"
	"gopkg.in/yaml.v3"
)

func NewCmdSettings() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "查看进程配置",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	cmd.AddCommand(NewCmdSettingsShow())
	return cmd
}

func NewCmdSettingsShow() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "显示各配置层的加载结果与最终生效的配置, 密码已隐藏",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.ConfigDir
			s, outcomes, err := config.Load(config.LoadOptions{Dir: dir, Env: rootOpts.Env})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, oc := range outcomes {
				line := fmt.Sprintf("# %-8s %-8s %s", oc.Layer, oc.Status, oc.Source)
				if oc.Err != nil {
					line += ": " + oc.Err.Error()
				}
				fmt.Fprintln(out, line)
			}
			data, err := yaml.Marshal(maskSettings(*s))
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
}

func maskSettings(s config.Settings) config.Settings {
	s.Redis.URL = utils.MaskSecret(s.Redis.URL, s.Redis.Password)
	s.Queue.BrokerURL = utils.MaskSecret(s.Queue.BrokerURL, s.Redis.Password)
	s.Redis.Password = utils.MaskSecret(s.Redis.Password, s.Redis.Password)
	s.MySQL.Password = utils.MaskSecret(s.MySQL.Password, s.MySQL.Password)
	s.Sentry.DSN = utils.MaskSecret(s.Sentry.DSN, s.Sentry.DSN)
	return s
}
