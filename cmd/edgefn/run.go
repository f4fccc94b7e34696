package main

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	edgefn "github.com/cryguy/edgefn"
	"github.com/cryguy/edgefn/internal/core"
	"github.com/cryguy/edgefn/internal/secrets"
	"github.com/spf13/cobra"
)

var (
	runEnvFile string
	runMethod  string
	runURL     string
	runBody    string
	runHeaders []string
	runTimeout int
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Execute a local function file once and print the response",
	Args:  cobra.ExactArgs(1),
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().StringVar(&runEnvFile, "env", "", "dotenv file with the function's secrets")
	runCmd.Flags().StringVarP(&runMethod, "method", "X", "GET", "request method")
	runCmd.Flags().StringVar(&runURL, "url", "http://localhost/functions/v1/local", "request URL")
	runCmd.Flags().StringVarP(&runBody, "body", "d", "", "request body; @path reads a file")
	runCmd.Flags().StringArrayVarP(&runHeaders, "header", "H", nil, "request header as 'Name: value' (repeatable)")
	runCmd.Flags().IntVar(&runTimeout, "timeout-ms", 0, "override the execution timeout")
}

func runOnce(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	cfg := settings.Engine
	if runTimeout > 0 {
		cfg.ExecutionTimeout = time.Duration(runTimeout) * time.Millisecond
	}

	env := core.SecretMap{}
	if runEnvFile != "" {
		if env, err = secrets.ReadFile(runEnvFile); err != nil {
			return err
		}
	}

	req := &core.ExecutionRequest{URL: runURL, Method: strings.ToUpper(runMethod)}
	for _, h := range runHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("malformed header %q", h)
		}
		req.Headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if runBody != "" {
		body := []byte(runBody)
		if path, ok := strings.CutPrefix(runBody, "@"); ok {
			if body, err = os.ReadFile(path); err != nil {
				return err
			}
		}
		req.Body = body
	}

	engine := edgefn.NewEngine(cfg, edgefn.WithLogger(newLogger(settings.LogLevel)))
	def := &core.FunctionDefinition{Identifier: "local", SourceCode: string(source), Status: core.StatusActive}
	exec := engine.Run(context.Background(), def, req, env)

	for _, entry := range exec.Logs {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", entry.Level, entry.Message)
	}
	return printResponse(cmd.OutOrStdout(), edgefn.Marshal(exec.Result))
}

// printResponse writes resp in HTTP/1.1 wire form.
func printResponse(w io.Writer, resp *edgefn.Response) error {
	rec := httptest.NewRecorder()
	if err := resp.Write(rec); err != nil {
		return err
	}
	res := rec.Result()
	defer res.Body.Close()
	fmt.Fprintf(w, "HTTP/1.1 %s\n", res.Status)
	if err := res.Header.Write(w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	_, err := io.Copy(w, res.Body)
	return err
}
