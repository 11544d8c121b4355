package cmd

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wentf9/xdeploy/cmd/utils"
	"github.com/wentf9/xdeploy/pkg/config"
	"github.com/wentf9/xdeploy/pkg/models"
)

func NewCmdInventory() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inventory",
		Aliases: []string{"host", "hosts", "inv"},
		Short:   "管理部署清单中的主机、角色和认证信息",
		Long: `管理部署清单 (deploy.yaml) 中的主机、角色和认证信息。
清单中的密码和私钥密码保存时使用 ~/.xdeploy/key 加密。`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	cmd.AddCommand(NewCmdInventoryList())
	cmd.AddCommand(NewCmdInventoryAdd())
	cmd.AddCommand(NewCmdInventoryDelete())
	cmd.AddCommand(NewCmdInventoryRoles())
	cmd.AddCommand(NewCmdInventoryRole())
	cmd.AddCommand(NewCmdInventorySetPassword())
	cmd.AddCommand(NewCmdInventoryEncrypt())

	return cmd
}

func NewCmdInventoryList() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "列出所有主机",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := rootOpts.Inventory()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADDRESS\tUSER\tAUTH\tJUMP\tROLES")
			for _, name := range slices.Sorted(maps.Keys(inv.Hosts)) {
				h, id, err := inv.Resolve(name)
				if err != nil {
					fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t%s\n", name, h.Address, err)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", name, h.Addr(), id.User, id.AuthType, dash(h.ProxyJump), strings.Join(rolesOf(inv, name), ","))
			}
			return w.Flush()
		},
	}
}

func NewCmdInventoryAdd() *cobra.Command {
	var (
		host     models.Host
		identity string
		roles    []string
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "添加或覆盖一个主机",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" || host.Address == "" {
				return fmt.Errorf("主机名称和地址不能为空")
			}
			store, inv, err := loadInventory()
			if err != nil {
				return err
			}
			if identity != "" {
				if _, ok := inv.Identities[identity]; !ok {
					return fmt.Errorf("认证信息 %s 不存在", identity)
				}
				host.IdentityRef = identity
			}
			if host.ProxyJump != "" {
				if _, ok := inv.FindHost(host.ProxyJump); !ok {
					fmt.Fprintf(cmd.ErrOrStderr(), "警告: 跳板机 %s 不在清单中, 将按临时地址连接\n", host.ProxyJump)
				}
			}
			inv.Hosts[name] = host
			for _, role := range utils.SplitList(roles) {
				if !slices.Contains(inv.Roles[role], name) {
					inv.Roles[role] = append(inv.Roles[role], name)
				}
			}
			if err := store.Save(inv); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "成功保存主机 %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&host.Address, "address", "H", "", "主机 IP 或域名")
	cmd.Flags().IntVarP(&host.Port, "port", "p", 0, "SSH 端口 (默认 22)")
	cmd.Flags().StringVarP(&identity, "identity", "i", "", "使用的认证信息名称")
	cmd.Flags().StringVarP(&host.ProxyJump, "jump", "j", "", "跳板机名称或地址")
	cmd.Flags().StringSliceVarP(&roles, "role", "r", nil, "加入的角色")
	return cmd
}

func NewCmdInventoryDelete() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "删除主机, 同时从所有角色中移除",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, inv, err := loadInventory()
			if err != nil {
				return err
			}
			name := args[0]
			if _, ok := inv.Hosts[name]; !ok {
				return fmt.Errorf("主机 %s 不存在", name)
			}
			delete(inv.Hosts, name)
			for role, hosts := range inv.Roles {
				inv.Roles[role] = slices.DeleteFunc(hosts, func(h string) bool { return h == name })
			}
			if err := store.Save(inv); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "成功删除主机 %s\n", name)
			return nil
		},
	}
}

func NewCmdInventoryRoles() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "列出所有角色及其主机",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := rootOpts.Inventory()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ROLE\tHOSTS")
			for _, role := range inv.RoleNames() {
				fmt.Fprintf(w, "%s\t%s\n", role, strings.Join(inv.Roles[role], ","))
			}
			return w.Flush()
		},
	}
}

func NewCmdInventoryRole() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "管理角色中的主机",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	cmd.AddCommand(newCmdInventoryRoleEdit("add", "将主机加入角色", true))
	cmd.AddCommand(newCmdInventoryRoleEdit("remove", "从角色中移除主机", false))
	return cmd
}

func newCmdInventoryRoleEdit(use, short string, add bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <role> <host1,host2...>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := strings.TrimSpace(args[0])
			if role == "" {
				return fmt.Errorf("角色名称不能为空")
			}
			store, inv, err := loadInventory()
			if err != nil {
				return err
			}
			updated := 0
			for _, name := range utils.SplitList(args[1:]) {
				has := slices.Contains(inv.Roles[role], name)
				switch {
				case add && !has:
					inv.Roles[role] = append(inv.Roles[role], name)
					updated++
				case !add && has:
					inv.Roles[role] = slices.DeleteFunc(inv.Roles[role], func(h string) bool { return h == name })
					updated++
				}
			}
			if len(inv.Roles[role]) == 0 {
				delete(inv.Roles, role)
			}
			if updated == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "未对任何角色进行更改")
				return nil
			}
			if err := store.Save(inv); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "角色 [%s] 已更新 %d 个主机\n", role, updated)
			return nil
		},
	}
}

func NewCmdInventorySetPassword() *cobra.Command {
	var passphrase bool
	cmd := &cobra.Command{
		Use:   "set-password <identity>",
		Short: "从终端读取并保存认证信息的密码",
		Long: `从终端读取密码并加密保存到清单。
默认设置登录密码并把认证方式改为 password; 使用 --passphrase 时设置私钥密码。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, inv, err := loadInventory()
			if err != nil {
				return err
			}
			name := args[0]
			id, ok := inv.Identities[name]
			if !ok && name != config.DefaultIdentity {
				return fmt.Errorf("认证信息 %s 不存在", name)
			}
			prompt := fmt.Sprintf("请输入 %s 的密码: ", name)
			if passphrase {
				prompt = fmt.Sprintf("请输入 %s 的私钥密码: ", name)
			}
			secret, err := utils.ReadPasswordFromTerminal(prompt)
			if err != nil {
				return fmt.Errorf("读取密码失败: %w", err)
			}
			if passphrase {
				id.Passphrase = secret
			} else {
				id.Password = secret
				id.AuthType = models.AuthPassword
			}
			inv.Identities[name] = id
			if err := store.Save(inv); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "密码已加密保存")
			return nil
		},
	}
	cmd.Flags().BoolVar(&passphrase, "passphrase", false, "设置私钥密码")
	return cmd
}

func NewCmdInventoryEncrypt() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt",
		Short: "加密清单中所有明文保存的密码",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, inv, err := loadInventory()
			if err != nil {
				return err
			}
			if err := store.Save(inv); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "清单中的敏感字段已加密")
			return nil
		},
	}
}

func loadInventory() (config.Store, *config.Inventory, error) {
	store, err := rootOpts.Store()
	if err != nil {
		return nil, nil, err
	}
	inv, err := rootOpts.Inventory()
	if err != nil {
		return nil, nil, err
	}
	return store, inv, nil
}

func rolesOf(inv *config.Inventory, host string) []string {
	var roles []string
	for _, role := range inv.RoleNames() {
		if slices.Contains(inv.Roles[role], host) {
			roles = append(roles, role)
		}
	}
	return roles
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
