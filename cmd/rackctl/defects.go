package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/paularlott/cli"

	"github.com/tphummel/rackline/internal/apiclient"
	"github.com/tphummel/rackline/internal/models"
)

func defectCommand() *cli.Command {
	return &cli.Command{
		Name:  "defect",
		Usage: "Track defects and vendor repairs",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Open a defect record",
				Flags: withConn(
					&cli.StringFlag{Name: "server", Usage: "Server id"},
					&cli.StringFlag{Name: "serial", Usage: "Server serial, for servers not in the registry"},
					&cli.StringFlag{Name: "part", Usage: "Repair part type, e.g. RAM or PSU"},
					&cli.StringFlag{Name: "problem", Usage: "Problem description"},
					&cli.StringFlag{Name: "notes", Usage: "Notes"},
				),
				Run: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.GetString("part") == "" {
						return fmt.Errorf("--part is required")
					}
					client, err := newClient(cmd)
					if err != nil {
						return err
					}
					in := apiclient.DefectInput{
						ServerSerial:       cmd.GetString("serial"),
						RepairPartType:     strings.ToUpper(cmd.GetString("part")),
						ProblemDescription: cmd.GetString("problem"),
						Notes:              cmd.GetString("notes"),
					}
					if id := cmd.GetString("server"); id != "" {
						in.ServerID = &id
					}
					d, err := client.CreateDefect(ctx, in)
					if err != nil {
						return err
					}
					printDefect(stdout, d)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List defect records",
				Flags: withConn(
					&cli.StringFlag{Name: "status", Usage: "Status filter"},
					&cli.StringFlag{Name: "server", Usage: "Server id filter"},
					&cli.StringFlag{Name: "open", Usage: "Only unresolved records (true/false)", DefaultValue: "false"},
				),
				Run: func(ctx context.Context, cmd *cli.Command) error {
					client, err := newClient(cmd)
					if err != nil {
						return err
					}
					open, err := strconv.ParseBool(cmd.GetString("open"))
					if err != nil {
						return fmt.Errorf("invalid --open value %q", cmd.GetString("open"))
					}
					defects, err := client.ListDefects(ctx, strings.ToUpper(cmd.GetString("status")), cmd.GetString("server"), open)
					if err != nil {
						return err
					}
					printDefects(stdout, defects)
					return nil
				},
			},
			defectActionCommand("send-to-yadro", "Send the part to vendor repair", map[string]string{
				"ticket":     "yadro_ticket_number",
				"substitute": "substitute_server_serial",
				"notes":      "notes",
			}),
			defectActionCommand("return-from-yadro", "Record the return from vendor repair", map[string]string{
				"replacement-yadro": "replacement_part_serial_yadro",
				"replacement-manuf": "replacement_part_serial_manuf",
				"notes":             "notes",
			}),
			defectActionCommand("resolve", "Resolve a defect", map[string]string{"resolution": "resolution"}),
			defectActionCommand("mark-repeated", "Flag a recurrence", map[string]string{"reason": "reason"}),
			defectActionCommand("close", "Close a defect", map[string]string{"notes": "notes"}),
		},
	}
}

// defectActionCommand builds a workflow command whose flags map onto
// request body fields.
func defectActionCommand(action, usage string, fields map[string]string) *cli.Command {
	var flags []cli.Flag
	for _, flag := range slices.Sorted(maps.Keys(fields)) {
		flags = append(flags, &cli.StringFlag{Name: flag, Usage: strings.ReplaceAll(fields[flag], "_", " ")})
	}
	return &cli.Command{
		Name:      action,
		Usage:     usage,
		Arguments: []cli.Argument{&cli.StringArg{Name: "id", Required: true}},
		Flags:     withConn(flags...),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			body := make(map[string]string, len(fields))
			for flag, field := range fields {
				if v := cmd.GetString(flag); v != "" {
					body[field] = v
				}
			}
			d, err := client.DefectAction(ctx, cmd.GetStringArg("id"), action, body)
			if err != nil {
				return err
			}
			printDefect(stdout, d)
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Query the history ledger",
		Flags: withConn(
			&cli.StringFlag{Name: "entity-type", Usage: "SERVER, BATCH, RACK, CLUSTER, SHIPMENT or DEFECT"},
			&cli.StringFlag{Name: "entity-id", Usage: "Entity id"},
			&cli.StringFlag{Name: "server-id", Usage: "Server id"},
			&cli.StringFlag{Name: "action", Usage: "Action, e.g. STATUS_CHANGED"},
			&cli.StringFlag{Name: "since", Usage: "Only entries at or after this RFC 3339 time or duration ago (e.g. 24h)"},
			&cli.StringFlag{Name: "limit", Usage: "Maximum entries", DefaultValue: "50"},
		),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			f := models.HistoryFilter{
				EntityType: models.EntityType(strings.ToUpper(cmd.GetString("entity-type"))),
				EntityID:   cmd.GetString("entity-id"),
				ServerID:   cmd.GetString("server-id"),
				Action:     models.HistoryAction(strings.ToUpper(cmd.GetString("action"))),
			}
			if f.Since, err = parseSince(cmd.GetString("since"), time.Now()); err != nil {
				return err
			}
			if f.Limit, err = strconv.Atoi(cmd.GetString("limit")); err != nil || f.Limit < 1 {
				return fmt.Errorf("invalid --limit value %q", cmd.GetString("limit"))
			}
			entries, err := client.ListHistory(ctx, f)
			if err != nil {
				return err
			}
			printHistory(stdout, entries)
			return nil
		},
	}
}

// parseSince accepts an RFC 3339 time or a duration before now.
func parseSince(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("invalid --since value %q", v)
	}
	return now.Add(-d), nil
}
