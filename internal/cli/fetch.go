package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/egdose/reqwrap"
)

// fetchCommand creates the "fetch" command: one reliable request from the
// shell, with the same per-call overrides the library exposes.
func (c *CLI) fetchCommand() *cobra.Command {
	var (
		method   string
		headers  []string
		params   []string
		data     string
		jsonBody string
		retries  int
		proxy    string
		timeout  time.Duration
		insecure bool
		noCache  bool
		showHead bool
	)

	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Perform one HTTP request with retries, rotation and caching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			spec := &reqwrap.RequestSpec{
				Method: method,
				URL:    args[0],
			}
			if spec.Headers, err = parsePairs(headers, ":"); err != nil {
				return err
			}
			if spec.Params, err = parsePairs(params, "="); err != nil {
				return err
			}
			if data != "" {
				spec.Body = []byte(data)
			} else if jsonBody != "" {
				spec.Body = []byte(jsonBody)
				if spec.Headers == nil {
					spec.Headers = map[string]string{}
				}
				spec.Headers["Content-Type"] = "application/json"
			}

			opts := &reqwrap.RequestOptions{}
			if cmd.Flags().Changed("retries") {
				opts.RetryCount = reqwrap.Int(retries)
			}
			if cmd.Flags().Changed("timeout") {
				opts.Timeout = reqwrap.Duration(timeout)
			}
			if insecure {
				opts.VerifySSL = reqwrap.Bool(false)
			}
			if noCache {
				opts.UseCache = reqwrap.Bool(false)
			}
			if proxy != "" {
				p, err := reqwrap.ParseProxy(proxy)
				if err != nil {
					return err
				}
				opts.Proxy = p
			}

			resp, err := client.Request(cmd.Context(), spec, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d %s\n", resp.StatusCode, resp.Reason)
			if showHead {
				for k, v := range resp.Headers {
					fmt.Fprintf(out, "%s: %s\n", k, v)
				}
				fmt.Fprintln(out)
			}
			_, err = out.Write(resp.Body)
			return err
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "HTTP method")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "request header as 'Key: Value' (repeatable)")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "query parameter as key=value (repeatable)")
	cmd.Flags().StringVarP(&data, "data", "d", "", "raw request body")
	cmd.Flags().StringVar(&jsonBody, "json", "", "JSON request body (sets Content-Type)")
	cmd.Flags().IntVar(&retries, "retries", 0, "override the retry count for this request")
	cmd.Flags().StringVar(&proxy, "proxy", "", "proxy URL for this request (bypasses rotation)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-attempt timeout for this request")
	cmd.Flags().BoolVarP(&insecure, "insecure", "k", false, "skip TLS certificate verification")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the response cache")
	cmd.Flags().BoolVarP(&showHead, "include", "i", false, "print response headers before the body")

	return cmd
}

// parsePairs splits repeatable "key<sep>value" flags into a map.
func parsePairs(pairs []string, sep string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, sep)
		if !found || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("malformed pair %q, want key%svalue", pair, sep)
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out, nil
}
