// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"log/slog"

	"github.com/autocrm/journey/pkg/capabilities/content"
	"github.com/autocrm/journey/pkg/capabilities/messaging"
	"github.com/autocrm/journey/pkg/capabilities/subjects"
	"github.com/autocrm/journey/pkg/capabilities/tasks"
	"github.com/autocrm/journey/pkg/journey"
)

// CapabilityConfig carries the endpoints of the CRM services the executor
// dispatches actions to. An empty URL leaves that capability unconfigured;
// actions needing it are logged as warnings instead of executing.
type CapabilityConfig struct {
	MessagingURL string
	ChatURL      string
	TasksURL     string
	ContentURL   string
	SubjectsURL  string
	APIKey       string
}

func NewCapabilities(config CapabilityConfig, logger *slog.Logger) journey.Capabilities {
	capabilities := journey.Capabilities{}

	if config.MessagingURL != "" {
		capabilities.Messages = messaging.NewAdapter(config.MessagingURL, config.APIKey, "message", logger)
	}

	if config.ChatURL != "" {
		capabilities.Chats = messaging.NewAdapter(config.ChatURL, config.APIKey, "chat", logger)
	}

	if config.TasksURL != "" {
		capabilities.Tasks = tasks.NewAdapter(config.TasksURL, config.APIKey, logger)
	}

	if config.ContentURL != "" {
		capabilities.Content = content.NewAdapter(config.ContentURL, config.APIKey, logger)
	}

	if config.SubjectsURL != "" {
		capabilities.Subjects = subjects.NewAdapter(config.SubjectsURL, config.APIKey, logger)
	}

	return capabilities
}
