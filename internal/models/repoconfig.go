package models

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-repository configuration file, read from the .github directory.
const ConfigFileName = "docker-cloud-config.yml"

// BranchPolicy selects branches by whitelist (Only) or blacklist (Ignore).
// Entries are literal names or /pattern/ regular expressions.
type BranchPolicy struct {
	Only   []string `yaml:"only,omitempty"`
	Ignore []string `yaml:"ignore,omitempty"`
}

type TriggerPolicy struct {
	ExpectedState  string        `yaml:"status"`
	AllowedIssuers []string      `yaml:"issuers"`
	Branches       *BranchPolicy `yaml:"-"`
}

type NotifyPolicy struct {
	OnCreate bool `yaml:"onCreate"`
	OnUpdate bool `yaml:"onUpdate"`
	OnDelete bool `yaml:"onDelete"`
}

// StackTemplate is the blueprint for newly created stacks. Template is merged
// over the generated service definition; its "name" groups services across
// stacks for port assignment.
type StackTemplate struct {
	ImageRepo         string                 `yaml:"imageRepo"`
	InnerPort         PortNumber             `yaml:"innerPort"`
	OuterPortRangeMin PortNumber             `yaml:"outerPortRangeMin"`
	Template          map[string]interface{} `yaml:"template"`
}

// Name returns the service group name from the template fragment.
func (t StackTemplate) Name() string {
	name, _ := t.Template["name"].(string)
	return name
}

// RepoConfig is the decoded docker-cloud-config.yml.
type RepoConfig struct {
	Branches *BranchPolicy `yaml:"branches,omitempty"`
	Trigger  TriggerPolicy `yaml:"trigger"`
	Notify   NotifyPolicy  `yaml:"notify"`
	Stack    StackTemplate `yaml:"stack"`
}

// Policy returns the trigger policy with the branch filter attached.
func (c *RepoConfig) Policy() TriggerPolicy {
	p := c.Trigger
	p.Branches = c.Branches
	return p
}

// ParseRepoConfig decodes a repository configuration document.
func ParseRepoConfig(data []byte) (*RepoConfig, error) {
	var cfg RepoConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ConfigFileName, err)
	}
	return &cfg, nil
}

// PortNumber accepts both numeric and quoted port values.
type PortNumber int

func (p *PortNumber) UnmarshalYAML(value *yaml.Node) error {
	n, err := strconv.Atoi(value.Value)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", value.Value, err)
	}
	*p = PortNumber(n)
	return nil
}
