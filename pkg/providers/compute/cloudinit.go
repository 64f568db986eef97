package compute

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultImage is the operating system new servers boot.
const DefaultImage = "ubuntu-24.04"

// StatusRunning is the provider status of a booted server.
const StatusRunning = "running"

// DeployDir is where the platform's compose files live on the server.
const DeployDir = "/opt/launchpad"

type cloudConfig struct {
	PackageUpdate bool     `yaml:"package_update"`
	Packages      []string `yaml:"packages"`
	RunCmd        []string `yaml:"runcmd"`
}

// BootScript returns the cloud-init user data that installs Docker and prepares
// deployDir.
func BootScript(deployDir string) (string, error) {
	if deployDir == "" {
		deployDir = DeployDir
	}
	cfg := cloudConfig{
		PackageUpdate: true,
		Packages:      []string{"ca-certificates", "curl"},
		RunCmd: []string{
			"curl -fsSL https://get.docker.com | sh",
			"systemctl enable --now docker",
			fmt.Sprintf("mkdir -p %s", deployDir),
		},
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("render cloud-init: %w", err)
	}
	return "#cloud-config\n" + string(out), nil
}

// NetplanPath is the drop-in that binds reserved addresses on the host.
const NetplanPath = "/etc/netplan/60-floating-ip.yaml"

type netplanEthernet struct {
	Addresses []string `yaml:"addresses"`
}

type netplanConfig struct {
	Network struct {
		Version   int                        `yaml:"version"`
		Ethernets map[string]netplanEthernet `yaml:"ethernets"`
	} `yaml:"network"`
}

// FloatingIPNetplan returns a netplan drop-in adding ip as a /32 on the public
// interface. The provider routes the address but the host must accept it.
func FloatingIPNetplan(iface, ip string) ([]byte, error) {
	if iface == "" {
		iface = "eth0"
	}
	var cfg netplanConfig
	cfg.Network.Version = 2
	cfg.Network.Ethernets = map[string]netplanEthernet{
		iface: {Addresses: []string{ip + "/32"}},
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("render netplan: %w", err)
	}
	return out, nil
}
