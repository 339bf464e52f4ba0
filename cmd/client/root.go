package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

// cli holds the flags shared by every command.
type cli struct {
	server  string
	token   string
	timeout time.Duration
	out     io.Writer
	http    *http.Client
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out, http: &http.Client{}}

	root := &cobra.Command{
		Use:           "hivectl",
		Short:         "Command line client for the hive BFF",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.server == "" {
				c.server = os.Getenv("HIVECTL_SERVER")
			}
			if c.server == "" {
				c.server = defaultServer
			}
			c.server = strings.TrimRight(c.server, "/")
			if c.token == "" {
				c.token = os.Getenv("HIVECTL_TOKEN")
			}
			c.http.Timeout = c.timeout
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.server, "server", "", "BFF base URL (default $HIVECTL_SERVER or "+defaultServer+")")
	root.PersistentFlags().StringVar(&c.token, "token", "", "bearer token (default $HIVECTL_TOKEN)")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 15*time.Second, "request timeout")
	root.SetOut(out)

	root.AddCommand(c.healthCmd(), c.searchCmd(), c.listCmd())
	for _, name := range []string{"events", "tasks", "notes"} {
		root.AddCommand(c.resourceCmd(name))
	}
	return root
}

// call sends a JSON request and prints the response body. Non-2xx statuses
// are returned as errors carrying the body.
func (c *cli) call(ctx context.Context, method, path string, query url.Values, body any) error {
	target := c.server + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return c.print(data)
}

func (c *cli) print(data []byte) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		_, err = c.out.Write(data)
		return err
	}
	pretty.WriteByte('\n')
	_, err := c.out.Write(pretty.Bytes())
	return err
}

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the BFF is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), http.MethodGet, "/health", nil, nil)
		},
	}
}
