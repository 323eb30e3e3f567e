// Package coretools registers the built-in tool set every deployment gets:
// shell execution, HTTP probing, and headless page capture.
package coretools

import (
	"fmt"

	"github.com/stingersec/stinger/pkg/tool"
)

// Options configures registration of the built-in tools.
type Options struct {
	// WorkspaceRoot anchors relative working directories for shell commands.
	WorkspaceRoot string

	// BrowserCDPURL, when set, attaches web_snapshot to an already running
	// Chrome instead of launching one per call.
	BrowserCDPURL string

	// DisableBrowser skips web_snapshot registration entirely.
	DisableBrowser bool
}

// Register adds the built-in tools to a registry.
func Register(registry *tool.Registry, opts Options) error {
	defs := []tool.Definition{
		commandTool(opts),
		httpRequestTool(),
	}
	if !opts.DisableBrowser {
		defs = append(defs, webSnapshotTool(opts))
	}

	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", def.Name, err)
		}
	}
	return nil
}
