package coretools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/stingersec/stinger/pkg/tool"
)

const (
	httpRequestTimeout = 30 * time.Second
	maxResponseBody    = 64 * 1024
)

// httpRequestTool performs a single HTTP request. Safe to run concurrently
// with other tool calls.
func httpRequestTool() tool.Definition {
	client := &http.Client{Timeout: httpRequestTimeout}

	return tool.Definition{
		Name:        "http_request",
		Description: "Perform an HTTP request and return the status line, response headers, and body. Bodies are truncated past 64KB.",
		Concurrent:  true,
		Parameters: []tool.Parameter{
			{Name: "url", Type: "string", Description: "Target URL (http or https)", Required: true},
			{Name: "method", Type: "string", Description: "HTTP method (default GET)", Required: false},
			{Name: "headers", Type: "object", Description: "Request headers as a name to value map", Required: false},
			{Name: "body", Type: "string", Description: "Request body", Required: false},
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

			method := http.MethodGet
			if raw, ok := args["method"].(string); ok && raw != "" {
				method = strings.ToUpper(strings.TrimSpace(raw))
			}

			var body io.Reader
			if raw, ok := args["body"].(string); ok && raw != "" {
				body = strings.NewReader(raw)
			}

			req, err := http.NewRequestWithContext(ctx, method, url, body)
			if err != nil {
				return tool.Result{}, fmt.Errorf("failed to build request: %w", err)
			}
			if headers, ok := args["headers"].(map[string]interface{}); ok {
				for name, value := range headers {
					if s, ok := value.(string); ok {
						req.Header.Set(name, s)
					}
				}
			}

			resp, err := client.Do(req)
			if err != nil {
				return tool.Result{}, fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
			if err != nil {
				return tool.Result{}, fmt.Errorf("failed to read response: %w", err)
			}
			truncated := false
			if len(data) > maxResponseBody {
				data = data[:maxResponseBody]
				truncated = true
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "%s %s\n", resp.Proto, resp.Status)
			for _, name := range sortedHeaderNames(resp.Header) {
				fmt.Fprintf(&sb, "%s: %s\n", name, strings.Join(resp.Header[name], ", "))
			}
			sb.WriteString("\n")
			sb.Write(data)
			if truncated {
				sb.WriteString("\n(body truncated)")
			}
			return tool.Result{Output: sb.String()}, nil
		},
	}
}

func sortedHeaderNames(h http.Header) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
