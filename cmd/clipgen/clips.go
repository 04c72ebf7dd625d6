package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/clipforge/clipgen/internal/api"
	"github.com/clipforge/clipgen/internal/history"
)

const clipsRequestTimeout = 10 * time.Second

func newClipsCommand(ctx *commandContext) *cobra.Command {
	var (
		server string
		callID string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "clips",
		Short: "List recent clip generations recorded by a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				server = fmt.Sprintf("http://127.0.0.1:%d", cfg.Port())
			}

			clips, err := fetchClips(cmd, server, callID, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(clips) == 0 {
				fmt.Fprintln(out, "No clips recorded")
				return nil
			}
			fmt.Fprintln(out, renderClips(clips))
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Base URL of the clipgen server (defaults to the configured local port)")
	cmd.Flags().StringVar(&callID, "call-id", "", "Only show clips for this call")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of clips to show")
	return cmd
}

func fetchClips(cmd *cobra.Command, server, callID string, limit int) ([]api.ClipRecordResponse, error) {
	endpoint, err := url.Parse(strings.TrimRight(server, "/") + "/clips")
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	q := endpoint.Query()
	if callID != "" {
		q.Set("call_id", callID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	client := &http.Client{Timeout: clipsRequestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query clips: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var list api.ClipsResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return list.Clips, nil
}

func renderClips(clips []api.ClipRecordResponse) string {
	headers := []string{"ID", "Call", "#", "Window", "Status", "Detail", "Size", "Took", "Created"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(clips))
	for _, c := range clips {
		id := c.ID
		if len(id) > 8 {
			id = id[:8]
		}

		detail := c.StorageKey
		size := ""
		if c.Status == history.StatusFailed {
			detail = c.FailedStage
			if c.Error != "" {
				detail += ": " + truncateCell(c.Error, 48)
			}
		} else if c.SizeBytes > 0 {
			size = humanize.Bytes(uint64(c.SizeBytes))
		}

		took := ""
		if c.DurationMS > 0 {
			took = (time.Duration(c.DurationMS) * time.Millisecond).String()
		}

		rows = append(rows, []string{
			id,
			c.CallID,
			strconv.Itoa(c.ExchangeIndex),
			fmt.Sprintf("%gs-%gs", c.StartSeconds, c.EndSeconds),
			c.Status,
			detail,
			size,
			took,
			c.CreatedAt,
		})
	}
	return renderTable(headers, rows, aligns)
}

func truncateCell(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
