package config

import (
	"path/filepath"

	"github.com/wentf9/xdeploy/pkg/models"
)

// Inventory 对应 deploy.yaml: 角色, 主机, 认证信息以及项目的本地/远程路径
type Inventory struct {
	User        string `yaml:"user"`
	Project     string `yaml:"project"`
	GitRegistry string `yaml:"git_registry"`
	Branch      string `yaml:"branch"`
	// WorkDir 本地工作目录, 部署用的代码副本和数据库备份都放在这里
	WorkDir           string   `yaml:"work_dir"`
	RemoteAppDir      string   `yaml:"remote_app_dir"`
	RemoteUploadDir   string   `yaml:"remote_upload_dir"`
	RemoteServicesDir string   `yaml:"remote_services_dir"`
	MySQLHost         string   `yaml:"mysql_host"`
	DB                DBConfig `yaml:"db"`

	Roles      map[string][]string        `yaml:"roles"`
	Hosts      map[string]models.Host     `yaml:"hosts,omitempty"`
	Identities map[string]models.Identity `yaml:"identities,omitempty"`
}

// DBConfig 数据库容器及其凭据
type DBConfig struct {
	Container string `yaml:"container"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Name      string `yaml:"name"`
}

func (inv *Inventory) applyDefaults() {
	def := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	def(&inv.User, "ubuntu")
	def(&inv.Project, "app")
	def(&inv.Branch, "master")
	def(&inv.WorkDir, ".")
	def(&inv.RemoteAppDir, "/data/opt/"+inv.Project)
	def(&inv.RemoteUploadDir, "/data/deploy_app")
	def(&inv.RemoteServicesDir, "/data/dev-docker-services")
	def(&inv.DB.Container, "product_mysql")
	def(&inv.DB.User, "root")
	def(&inv.DB.Password, "root")
	def(&inv.DB.Name, inv.Project)
	if inv.Roles == nil {
		inv.Roles = map[string][]string{}
	}
	if inv.Hosts == nil {
		inv.Hosts = map[string]models.Host{}
	}
	if inv.Identities == nil {
		inv.Identities = map[string]models.Identity{}
	}
}

// DeployDir 部署用代码副本的父目录
func (inv *Inventory) DeployDir() string {
	return filepath.Join(inv.WorkDir, "tmp", "deploy")
}

// ProjectDir 部署用代码副本
func (inv *Inventory) ProjectDir() string {
	return filepath.Join(inv.DeployDir(), inv.Project)
}

// BackupDir 本地数据库备份目录
func (inv *Inventory) BackupDir() string {
	return filepath.Join(inv.WorkDir, "backup")
}
