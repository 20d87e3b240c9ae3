// Command presencectl prints the relay's online users and counters as tables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"presencerelay/internal/api"
	"presencerelay/pkg/types"
)

var errUsage = errors.New("usage: presencectl [-addr http://host:port] users|stats")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("presencectl", flag.ContinueOnError)
	flags.SetOutput(stderr)
	addr := flags.String("addr", envOr("PRESENCE_ADDR", "http://localhost:8080"), "relay base URL")
	timeout := flags.Duration("timeout", 5*time.Second, "request timeout")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errUsage
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	base := strings.TrimRight(*addr, "/")

	switch flags.Arg(0) {
	case "users":
		var resp api.UsersResponse
		if err := fetch(ctx, base+"/api/users", &resp); err != nil {
			return err
		}
		renderUsers(stdout, resp.Users)
	case "stats":
		var resp api.StatsResponse
		if err := fetch(ctx, base+"/api/stats", &resp); err != nil {
			return err
		}
		renderStats(stdout, resp)
	default:
		return errUsage
	}
	return nil
}

func fetch(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Message)
		}
		return fmt.Errorf("%s: unexpected status", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	return table
}

func renderUsers(w io.Writer, users []types.UserSession) {
	table := newTable(w, "Username", "Connection", "Joined")
	for _, u := range users {
		table.Append([]string{u.DisplayName, u.ConnectionID, u.JoinedAt.Format(time.RFC3339)})
	}
	table.SetFooter([]string{"", "Online", strconv.Itoa(len(users))})
	table.Render()
}

func renderStats(w io.Writer, stats api.StatsResponse) {
	table := newTable(w, "Metric", "Value")
	table.Append([]string{"online users", strconv.Itoa(stats.OnlineUsers)})
	table.Append([]string{"connections", strconv.Itoa(stats.Connections)})
	table.Append([]string{"uptime", (time.Duration(stats.UptimeSeconds) * time.Second).String()})
	table.Append([]string{"memory rss", strconv.FormatUint(stats.MemoryRSSBytes, 10)})

	kinds := make([]string, 0, len(stats.Journal))
	for kind := range stats.Journal {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		table.Append([]string{"journal " + kind, strconv.Itoa(stats.Journal[types.PresenceKind(kind)])})
	}
	table.Render()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
