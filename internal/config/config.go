package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Executor backends
const (
	BackendHelm   = "helm"
	BackendDocker = "docker"
	BackendDryRun = "dry-run"
)

type GitHubConfig struct {
	APIURL string `yaml:"apiURL" default:"https://api.github.com"`

	ApprovalLabel string `yaml:"approvalLabel" default:"needs-scheduling"` // Label which marks an issue as ready to be run
	DoneLabel     string `yaml:"doneLabel" default:"simulation-done"`      // Label which marks an issue as already run

	AuthorizedUsers []string `yaml:"authorizedUsers"` // Users allowed to approve a request by labelling it

	MarkDone bool `yaml:"markDone"` // Whether to add the done label to an issue after running it

	LookupConcurrency int `yaml:"lookupConcurrency" default:"4"` // How many issue event lists may be fetched at once
}

type ExecutorConfig struct {
	Backend string `yaml:"backend" default:"helm"`
}

type HelmConfig struct {
	Chart         string `yaml:"chart" default:"https://github.com/vacp2p/dst-argo-workflows/raw/refs/heads/main/charts/waku-0.4.3.tgz"`
	Namespace     string `yaml:"namespace" default:"zerotesting"`
	ValuesDir     string `yaml:"valuesDir"` // Where rendered values files are written to. Defaults to the temp dir
	Binary        string `yaml:"binary" default:"helm"`
	KubectlBinary string `yaml:"kubectlBinary" default:"kubectl"`
}

type DockerConfig struct {
	RestPort int    `yaml:"restPort" default:"8645"` // The REST API port of the node image
	Label    string `yaml:"label" default:"simsched"`

	Healthcheck HealthcheckConfig `yaml:"healthcheck"`
}

// HealthcheckConfig configures the check of the REST API of the first bootstrap node after it was started
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/health"`

	Retries int `yaml:"retries" default:"10"`

	Backoff          time.Duration `yaml:"backoff" default:"1s"`
	BackoffIncrement time.Duration `yaml:"backoffIncrement" default:"500ms"`
	MaxBackoff       time.Duration `yaml:"maxBackoff" default:"5s"`
}

type AnalysisConfig struct {
	Enabled    bool   `yaml:"enabled" default:"true"`
	ToolkitDir string `yaml:"toolkitDir"` // Local checkout of the analysis toolkit. Analysis is skipped if empty
	WorkDir    string `yaml:"workDir" default:"analysis"`
	Python     string `yaml:"python" default:"python3"`
}

type ServerConfig struct {
	Port int `yaml:"port" default:"40033"`
}

// Config is the configuration of simsched, usually read from a yaml file
type Config struct {
	GitHub   GitHubConfig   `yaml:"github"`
	Executor ExecutorConfig `yaml:"executor"`
	Helm     HelmConfig     `yaml:"helm"`
	Docker   DockerConfig   `yaml:"docker"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Server   ServerConfig   `yaml:"server"`
}

// Default returns a config with every field set to its default
func Default() (*Config, error) {
	var config Config
	if err := defaults.Set(&config); err != nil {
		return nil, err
	}
	if config.Helm.ValuesDir == "" {
		config.Helm.ValuesDir = os.TempDir()
	}
	return &config, nil
}

// Read reads in a config in yaml format. Fields missing from the yaml are set to their defaults.
func Read(r io.Reader) (*Config, error) {
	config, err := Default()
	if err != nil {
		return nil, err
	}

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return config, config.Validate()
}

// Load reads the config at path, or returns the default config if path is empty
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config, err := Read(file)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("invalid config %s", path), err)
	}
	return config, nil
}

// Validate checks the config for values which cannot work
func (c *Config) Validate() error {
	switch c.Executor.Backend {
	case BackendHelm, BackendDocker, BackendDryRun:
	default:
		return fmt.Errorf("unknown executor backend %q", c.Executor.Backend)
	}
	if c.GitHub.LookupConcurrency < 1 {
		return fmt.Errorf("github.lookupConcurrency must be positive, got %d", c.GitHub.LookupConcurrency)
	}
	if h := c.Docker.Healthcheck; h.Enabled && h.Retries < 1 {
		return fmt.Errorf("docker.healthcheck.retries must be positive while the healthcheck is enabled, got %d", h.Retries)
	}
	return nil
}
