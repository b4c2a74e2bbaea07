// Command rackctl is a command-line client for the rackline API.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paularlott/cli"

	"github.com/tphummel/rackline/internal/apiclient"
	"github.com/tphummel/rackline/internal/log"
)

func main() {
	cmd := &cli.Command{
		Name:        "rackctl",
		Usage:       "Manage servers, racks, clusters and defects",
		Description: "Command-line client for the rackline inventory service",
		Commands: []*cli.Command{
			serverCommand(),
			rackCommand(),
			clusterCommand(),
			defectCommand(),
			historyCommand(),
		},
	}
	if err := cmd.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withConn appends the connection flags every API command accepts.
func withConn(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		&cli.StringFlag{Name: "server", Usage: "rackline server URL", EnvVars: []string{"RACKLINE_SERVER"}, DefaultValue: "http://localhost:8080"},
		&cli.StringFlag{Name: "api-token", Usage: "API bearer token", EnvVars: []string{"RACKLINE_API_TOKEN"}},
		&cli.StringFlag{Name: "actor", Usage: "Operator id recorded in history", EnvVars: []string{"RACKLINE_ACTOR_ID"}},
		&cli.StringFlag{Name: "log-level", Usage: "Log level (debug, info, warn, error)", EnvVars: []string{"RACKCTL_LOG_LEVEL"}, DefaultValue: "warn"},
	)
}

// newClient builds an API client from the connection flags of cmd.
func newClient(cmd *cli.Command) (*apiclient.Client, error) {
	log.Configure(cmd.GetString("log-level"), "console", os.Stderr)

	var actor int64
	if v := strings.TrimSpace(cmd.GetString("actor")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid actor id %q", v)
		}
		actor = n
	}
	log.Debug("connecting", "server", cmd.GetString("server"), "actor", actor)
	return apiclient.NewClient(cmd.GetString("server"), cmd.GetString("api-token"), actor)
}

// unitArg parses a rack unit number argument.
func unitArg(cmd *cli.Command, name string) (int, error) {
	n, err := strconv.Atoi(cmd.GetStringArg(name))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid unit number %q", cmd.GetStringArg(name))
	}
	return n, nil
}

func parseList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
