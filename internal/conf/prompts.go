package conf

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/usecase"
)

// PromptsConfig contains all prompt configurations loaded from YAML
type PromptsConfig struct {
	Analysis AnalysisPrompts `yaml:"analysis"`
	Format   FormatConfig    `yaml:"format"`
}

// AnalysisPrompts contains the system prompt per scope
type AnalysisPrompts struct {
	ChatSystemPrompt         string `yaml:"chat_system_prompt"`
	UserSystemPrompt         string `yaml:"user_system_prompt"`
	UserAllChatsSystemPrompt string `yaml:"user_all_chats_system_prompt"`
	InsufficientDataReport   string `yaml:"insufficient_data_report"`
}

// FormatConfig contains transcript headings
type FormatConfig struct {
	TranscriptHeader    string `yaml:"transcript_header"`
	ChatSectionTemplate string `yaml:"chat_section_template"`
	PartnersHeader      string `yaml:"partners_header"`
}

// LoadPromptsConfig loads prompts configuration from YAML file.
// With an empty path the usual locations are searched and defaults are used when none exists;
// an explicit path must exist.
func LoadPromptsConfig(configPath string, logger *slog.Logger) (*PromptsConfig, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/prompts.yaml",
			"/etc/feishu-chat-analyst/prompts.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data, loadedPath = b, p
			break
		}
		if configPath != "" {
			return nil, fmt.Errorf("read prompts %s: %w", configPath, err)
		}
	}

	if data == nil {
		logger.Info("no prompts.yaml found, using defaults")
		return DefaultPromptsConfig(), nil
	}

	logger.Info("loading prompts", "path", loadedPath)

	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", loadedPath, err)
	}

	// Fill in defaults for empty values
	config.fillDefaults()

	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *PromptsConfig) fillDefaults() {
	d := DefaultPromptsConfig()

	if c.Analysis.ChatSystemPrompt == "" {
		c.Analysis.ChatSystemPrompt = d.Analysis.ChatSystemPrompt
	}
	if c.Analysis.UserSystemPrompt == "" {
		c.Analysis.UserSystemPrompt = d.Analysis.UserSystemPrompt
	}
	if c.Analysis.UserAllChatsSystemPrompt == "" {
		c.Analysis.UserAllChatsSystemPrompt = d.Analysis.UserAllChatsSystemPrompt
	}
	if c.Analysis.InsufficientDataReport == "" {
		c.Analysis.InsufficientDataReport = d.Analysis.InsufficientDataReport
	}
	if c.Format.TranscriptHeader == "" {
		c.Format.TranscriptHeader = d.Format.TranscriptHeader
	}
	if c.Format.ChatSectionTemplate == "" {
		c.Format.ChatSectionTemplate = d.Format.ChatSectionTemplate
	}
	if c.Format.PartnersHeader == "" {
		c.Format.PartnersHeader = d.Format.PartnersHeader
	}
}

// ToPromptConfig converts to prompt builder configuration
func (c *PromptsConfig) ToPromptConfig(maxPromptChars int) usecase.PromptConfig {
	return usecase.PromptConfig{
		ChatSystemPrompt:         c.Analysis.ChatSystemPrompt,
		UserSystemPrompt:         c.Analysis.UserSystemPrompt,
		UserAllChatsSystemPrompt: c.Analysis.UserAllChatsSystemPrompt,
		TranscriptHeader:         c.Format.TranscriptHeader,
		ChatSectionTemplate:      c.Format.ChatSectionTemplate,
		PartnersHeader:           c.Format.PartnersHeader,
		InsufficientDataReport:   c.Analysis.InsufficientDataReport,
		MaxPromptChars:           maxPromptChars,
	}
}

// DefaultPromptsConfig returns the default prompts configuration
func DefaultPromptsConfig() *PromptsConfig {
	d := usecase.DefaultPromptConfig
	return &PromptsConfig{
		Analysis: AnalysisPrompts{
			ChatSystemPrompt:         d.ChatSystemPrompt,
			UserSystemPrompt:         d.UserSystemPrompt,
			UserAllChatsSystemPrompt: d.UserAllChatsSystemPrompt,
			InsufficientDataReport:   d.InsufficientDataReport,
		},
		Format: FormatConfig{
			TranscriptHeader:    d.TranscriptHeader,
			ChatSectionTemplate: d.ChatSectionTemplate,
			PartnersHeader:      d.PartnersHeader,
		},
	}
}
