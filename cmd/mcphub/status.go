package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	mcpgateway "github.com/vikashloomba/mcp-hub-gateway/pkg/mcp-gateway"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/telemetry"
)

func newStatusCmd() *cobra.Command {
	var (
		endpoint string
		timeout  time.Duration
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the backends seen by a running hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			doc, err := fetchDiscovery(ctx, telemetry.NewTracedHTTPClient(nil), endpoint)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			}
			renderStatus(cmd.OutOrStdout(), doc)
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "http://localhost"+defaultAddr(), "Base URL of the running hub")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw discovery document")
	return cmd
}

func fetchDiscovery(ctx context.Context, client *http.Client, endpoint string) (*mcpgateway.DiscoveryDocument, error) {
	url := strings.TrimRight(endpoint, "/") + mcpgateway.DiscoveryPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach hub at %s: %w", endpoint, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("hub returned %s: %s", res.Status, strings.TrimSpace(string(body)))
	}
	var doc mcpgateway.DiscoveryDocument
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	return &doc, nil
}

func renderStatus(w io.Writer, doc *mcpgateway.DiscoveryDocument) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(fmt.Sprintf("%s %s", doc.Hub.Name, doc.Hub.Version))
	t.AppendHeader(table.Row{"BACKEND", "PATH", "STATUS", "TOOLS", "LAST CHECKED", "ERROR"})
	for _, s := range doc.Servers {
		status := text.FgGreen.Sprint(s.HealthStatus)
		if s.HealthStatus != "online" {
			status = text.FgRed.Sprint(s.HealthStatus)
		}
		checked := "-"
		if !s.LastChecked.IsZero() {
			checked = s.LastChecked.Local().Format(time.TimeOnly)
		}
		t.AppendRow(table.Row{s.ID, s.Path, status, s.AvailableTools, checked, s.Error})
	}
	t.AppendFooter(table.Row{
		"TOTAL", "",
		fmt.Sprintf("%d/%d online", doc.OnlineServers, doc.TotalServers),
		doc.TotalTools, "", "",
	})
	t.Render()
}
