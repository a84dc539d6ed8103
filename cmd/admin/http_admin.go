package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newStateCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print /admin/v1/state of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, adminURL(baseURL, "state"), nil)
			if err != nil {
				return err
			}
			return doAdmin(cmd.OutOrStdout(), &http.Client{Timeout: 5 * time.Second}, req)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "server base url")
	return cmd
}

func newRequestSnapshotCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "request-snapshot",
		Short: "Ask a running server to write a snapshot now",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, adminURL(baseURL, "snapshot"), nil)
			if err != nil {
				return err
			}
			return doAdmin(cmd.OutOrStdout(), &http.Client{Timeout: 10 * time.Second}, req)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://127.0.0.1:8080", "server base url")
	return cmd
}

func adminURL(base, endpoint string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + "/admin/v1/" + endpoint
}

func doAdmin(out io.Writer, cl *http.Client, req *http.Request) error {
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(out, strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s: %s", req.URL.Path, resp.Status)
	}
	return nil
}
