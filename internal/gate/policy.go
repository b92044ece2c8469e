package gate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultScreenshotTool  = "take_screenshot"
	DefaultScreenshotLimit = 5
)

// Policy holds the tunable thresholds of the gate. The category rules
// themselves are fixed; only these values come from configuration.
type Policy struct {
	// ScreenshotTool is suppressed once it has been called ScreenshotLimit times.
	ScreenshotTool  string `yaml:"screenshot_tool"`
	ScreenshotLimit int    `yaml:"screenshot_limit"`

	// TabListTools establish browsing context for the destructive category
	// even when no navigation has happened yet.
	TabListTools []string `yaml:"tab_list_tools"`
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{
		ScreenshotTool:  DefaultScreenshotTool,
		ScreenshotLimit: DefaultScreenshotLimit,
		TabListTools:    []string{"list_tabs"},
	}
}

// policyFile is the on-disk YAML shape: thresholds plus optional
// extra tool names per category.
type policyFile struct {
	ScreenshotTool  string              `yaml:"screenshot_tool"`
	ScreenshotLimit *int                `yaml:"screenshot_limit"`
	TabListTools    []string            `yaml:"tab_list_tools"`
	Categories      map[string][]string `yaml:"categories"`
}

// LoadPolicy reads a YAML policy file and merges it over the defaults.
// Tool names listed under categories are appended to the default table.
func LoadPolicy(path string) (Policy, Table, error) {
	policy := DefaultPolicy()
	table := DefaultTable()

	raw, err := os.ReadFile(path)
	if err != nil {
		return policy, table, fmt.Errorf("LoadPolicy: %w", err)
	}
	return parsePolicy(raw, policy, table)
}

func parsePolicy(raw []byte, policy Policy, table Table) (Policy, Table, error) {
	var f policyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return policy, table, fmt.Errorf("parsePolicy: %w", err)
	}

	if f.ScreenshotTool != "" {
		policy.ScreenshotTool = f.ScreenshotTool
	}
	if f.ScreenshotLimit != nil {
		if *f.ScreenshotLimit < 1 {
			return policy, table, fmt.Errorf("parsePolicy: screenshot_limit must be positive, got %d", *f.ScreenshotLimit)
		}
		policy.ScreenshotLimit = *f.ScreenshotLimit
	}
	if len(f.TabListTools) > 0 {
		policy.TabListTools = f.TabListTools
	}

	for name, tools := range f.Categories {
		c := Category(name)
		if !c.Valid() {
			return policy, table, fmt.Errorf("parsePolicy: unknown category %q", name)
		}
		table[c] = append(table[c], tools...)
	}

	return policy, table, nil
}
