package coretools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/stingersec/stinger/pkg/tool"
)

const (
	snapshotTimeout = 45 * time.Second
	maxSnapshotSize = 64 * 1024
)

// webSnapshotTool loads a page in headless Chrome and returns its rendered
// text, which picks up content a plain HTTP fetch would miss on
// script-heavy targets.
func webSnapshotTool(opts Options) tool.Definition {
	return tool.Definition{
		Name:        "web_snapshot",
		Description: "Render a page in a headless browser and return its visible text content.",
		Concurrent:  true,
		Timeout:     90 * time.Second,
		Parameters: []tool.Parameter{
			{Name: "url", Type: "string", Description: "Page URL to render", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (tool.Result, error) {
			url, _ := args["url"].(string)
			url = strings.TrimSpace(url)
			if url == "" {
				return tool.Result{}, fmt.Errorf("url is required")
			}
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				return tool.Result{}, fmt.Errorf("url must start with http:// or https://")
			}

			text, err := snapshotPage(opts, url)
			if err != nil {
				return tool.Result{}, err
			}
			if len(text) > maxSnapshotSize {
				text = text[:maxSnapshotSize] + "\n(snapshot truncated)"
			}
			if strings.TrimSpace(text) == "" {
				text = "(page rendered no visible text)"
			}
			return tool.Result{Output: text}, nil
		},
	}
}

func snapshotPage(opts Options, url string) (string, error) {
	cdpURL := opts.BrowserCDPURL
	var l *launcher.Launcher
	if cdpURL == "" {
		l = launcher.New().Headless(true)
		launched, err := l.Launch()
		if err != nil {
			return "", fmt.Errorf("failed to launch browser: %w", err)
		}
		cdpURL = launched
		defer l.Kill()
	}

	browser := rod.New().ControlURL(cdpURL)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	page = page.Timeout(snapshotTimeout)
	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("page load timed out: %w", err)
	}

	result, err := page.Eval(`() => document.body.innerText`)
	if err != nil {
		return "", fmt.Errorf("failed to extract page text: %w", err)
	}
	return result.Value.String(), nil
}
