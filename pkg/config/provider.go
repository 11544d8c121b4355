package config

import (
	"fmt"
	"maps"
	"net"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/wentf9/xdeploy/pkg/models"
)

// DefaultIdentity 未在主机上指定认证信息时使用的名称
const DefaultIdentity = "default"

// Resolve 根据名称查找主机及其认证信息.
// name 可以是 hosts 中的名称, 也可以是 [user@]address[:port] 形式的临时地址.
func (inv *Inventory) Resolve(name string) (models.Host, models.Identity, error) {
	host, ok := inv.Hosts[name]
	if !ok {
		if found, hit := inv.FindHost(name); hit {
			host, ok = inv.Hosts[found], true
		}
	}
	user := ""
	if !ok {
		u, addr, port, err := parseAddr(name)
		if err != nil {
			return models.Host{}, models.Identity{}, err
		}
		host = models.Host{Address: addr, Port: port}
		user = u
	}
	if host.Address == "" {
		return models.Host{}, models.Identity{}, fmt.Errorf("host '%s' has no address", name)
	}

	ref := host.IdentityRef
	if ref == "" {
		ref = DefaultIdentity
	}
	identity, ok := inv.Identities[ref]
	if !ok {
		if host.IdentityRef != "" {
			return models.Host{}, models.Identity{}, fmt.Errorf("identity ref '%s' not found for host '%s'", host.IdentityRef, name)
		}
		identity = models.Identity{AuthType: models.AuthAgent}
	}
	if user != "" {
		identity.User = user
	}
	if identity.User == "" {
		identity.User = inv.User
	}
	if identity.AuthType == "" {
		identity.AuthType = models.AuthAgent
	}
	return host, identity, nil
}

// FindHost 按名称或地址查找主机, 地址按规范化后的 IP 比较
func (inv *Inventory) FindHost(input string) (string, bool) {
	if _, ok := inv.Hosts[input]; ok {
		return input, true
	}
	want := input
	if ip := net.ParseIP(input); ip != nil {
		want = ip.String()
	}
	for _, name := range slices.Sorted(maps.Keys(inv.Hosts)) {
		addr := inv.Hosts[name].Address
		if ip := net.ParseIP(addr); ip != nil {
			addr = ip.String()
		}
		if addr == want {
			return name, true
		}
	}
	return "", false
}

// Targets 将角色展开成有序的目标列表, 同一主机只出现一次
func (inv *Inventory) Targets(roles []string) ([]models.Target, error) {
	var targets []models.Target
	seen := map[string]bool{}
	for _, role := range roles {
		hosts, ok := inv.Roles[role]
		if !ok {
			return nil, fmt.Errorf("role '%s' is not defined", role)
		}
		if len(hosts) == 0 {
			return nil, fmt.Errorf("role '%s' has no hosts", role)
		}
		for _, name := range hosts {
			name = strings.TrimSpace(name)
			if name == "" || seen[name] {
				continue
			}
			host, identity, err := inv.Resolve(name)
			if err != nil {
				return nil, fmt.Errorf("role '%s': %w", role, err)
			}
			seen[name] = true
			targets = append(targets, models.Target{Role: role, Name: name, Host: host, Identity: identity})
		}
	}
	return targets, nil
}

// RoleNames 按字典序返回所有角色
func (inv *Inventory) RoleNames() []string {
	names := make([]string, 0, len(inv.Roles))
	for name := range inv.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// parseAddr 解析 [user@]host[:port]
func parseAddr(input string) (user, host string, port int, err error) {
	input = strings.TrimSpace(input)
	if i := strings.LastIndex(input, "@"); i != -1 {
		user = input[:i]
		input = input[i+1:]
	}
	host = input
	if i := strings.LastIndex(input, ":"); i != -1 && !strings.Contains(input[:i], ":") {
		p, perr := strconv.Atoi(input[i+1:])
		if perr != nil || p <= 0 || p > 65535 {
			return "", "", 0, fmt.Errorf("invalid port in '%s'", input)
		}
		host, port = input[:i], p
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("invalid address '%s'", input)
	}
	return user, host, port, nil
}
