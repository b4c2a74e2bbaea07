package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/paularlott/cli"

	"github.com/tphummel/rackline/internal/apiclient"
	"github.com/tphummel/rackline/internal/log"
)

func serverCommand() *cli.Command {
	cmds := []*cli.Command{
		{
			Name:  "add",
			Usage: "Register a server",
			Flags: withConn(
				&cli.StringFlag{Name: "serial", Usage: "Manufacturer serial number"},
				&cli.StringFlag{Name: "apk", Usage: "APK serial number"},
				&cli.StringFlag{Name: "hostname", Usage: "Hostname"},
				&cli.StringFlag{Name: "ip", Usage: "IP address"},
				&cli.StringFlag{Name: "mac", Usage: "MAC address"},
				&cli.StringFlag{Name: "batch", Usage: "Batch id"},
				&cli.StringFlag{Name: "notes", Usage: "Notes"},
			),
			Run: func(ctx context.Context, cmd *cli.Command) error {
				client, err := newClient(cmd)
				if err != nil {
					return err
				}
				in := apiclient.ServerInput{
					SerialNumber:    cmd.GetString("serial"),
					APKSerialNumber: cmd.GetString("apk"),
					Hostname:        cmd.GetString("hostname"),
					IPAddress:       cmd.GetString("ip"),
					MACAddress:      cmd.GetString("mac"),
					Notes:           cmd.GetString("notes"),
				}
				if b := cmd.GetString("batch"); b != "" {
					in.BatchID = &b
				}
				srv, err := client.CreateServer(ctx, in)
				if err != nil {
					log.Error("register server failed", "serial", in.SerialNumber, "error", err)
					return err
				}
				log.Info("server registered", "id", srv.ID)
				printServer(stdout, srv)
				return nil
			},
		},
		{
			Name:      "get",
			Usage:     "Show a server",
			Arguments: []cli.Argument{&cli.StringArg{Name: "id", Required: true}},
			Flags:     withConn(),
			Run: func(ctx context.Context, cmd *cli.Command) error {
				client, err := newClient(cmd)
				if err != nil {
					return err
				}
				srv, err := client.GetServer(ctx, cmd.GetStringArg("id"))
				if apiclient.IsNotFound(err) {
					return fmt.Errorf("server %s not found", cmd.GetStringArg("id"))
				}
				if err != nil {
					return err
				}
				printServer(stdout, srv)
				return nil
			},
		},
		{
			Name:  "list",
			Usage: "List servers",
			Flags: withConn(
				&cli.StringFlag{Name: "status", Usage: "Status filter"},
				&cli.StringFlag{Name: "batch", Usage: "Batch filter"},
				&cli.StringFlag{Name: "search", Usage: "Search serials, hostname, IP and MAC"},
				&cli.StringFlag{Name: "unclustered", Usage: "Only servers outside active clusters (true/false)", DefaultValue: "false"},
			),
			Run: func(ctx context.Context, cmd *cli.Command) error {
				unclustered, err := strconv.ParseBool(cmd.GetString("unclustered"))
				if err != nil {
					return fmt.Errorf("invalid --unclustered value %q", cmd.GetString("unclustered"))
				}
				client, err := newClient(cmd)
				if err != nil {
					return err
				}
				servers, err := client.ListServers(ctx, apiclient.ServerFilter{
					Status:      strings.ToUpper(cmd.GetString("status")),
					BatchID:     cmd.GetString("batch"),
					Search:      cmd.GetString("search"),
					Unclustered: unclustered,
				})
				if err != nil {
					return err
				}
				printServers(stdout, servers)
				return nil
			},
		},
		{
			Name:  "status",
			Usage: "Change server status",
			Arguments: []cli.Argument{
				&cli.StringArg{Name: "id", Required: true},
				&cli.StringArg{Name: "status", Required: true},
			},
			Flags: withConn(&cli.StringFlag{Name: "notes", Usage: "Comment recorded in history"}),
			Run: func(ctx context.Context, cmd *cli.Command) error {
				client, err := newClient(cmd)
				if err != nil {
					return err
				}
				srv, err := client.SetServerStatus(ctx, cmd.GetStringArg("id"), strings.ToUpper(cmd.GetStringArg("status")), cmd.GetString("notes"))
				if err != nil {
					return err
				}
				printServer(stdout, srv)
				return nil
			},
		},
		{
			Name:  "apk",
			Usage: "Assign the APK serial",
			Arguments: []cli.Argument{
				&cli.StringArg{Name: "id", Required: true},
				&cli.StringArg{Name: "apk-serial", Required: true},
			},
			Flags: withConn(),
			Run: func(ctx context.Context, cmd *cli.Command) error {
				client, err := newClient(cmd)
				if err != nil {
					return err
				}
				srv, err := client.AssignAPKSerial(ctx, cmd.GetStringArg("id"), cmd.GetStringArg("apk-serial"))
				if err != nil {
					return err
				}
				printServer(stdout, srv)
				return nil
			},
		},
		{
			Name:      "checklist",
			Usage:     "Show the diagnostic checklist of a server",
			Arguments: []cli.Argument{&cli.StringArg{Name: "id", Required: true}},
			Flags:     withConn(),
			Run: func(ctx context.Context, cmd *cli.Command) error {
				client, err := newClient(cmd)
				if err != nil {
					return err
				}
				c, err := client.GetChecklist(ctx, cmd.GetStringArg("id"))
				if err != nil {
					return err
				}
				printChecklist(stdout, c)
				return nil
			},
		},
		{
			Name:  "check",
			Usage: "Complete or reopen a checklist item",
			Arguments: []cli.Argument{
				&cli.StringArg{Name: "id", Required: true},
				&cli.StringArg{Name: "template-id", Required: true},
			},
			Flags: withConn(
				&cli.StringFlag{Name: "undo", Usage: "Reopen instead of completing (true/false)", DefaultValue: "false"},
				&cli.StringFlag{Name: "notes", Usage: "Notes stored on the item"},
			),
			Run: func(ctx context.Context, cmd *cli.Command) error {
				undo, err := strconv.ParseBool(cmd.GetString("undo"))
				if err != nil {
					return fmt.Errorf("invalid --undo value %q", cmd.GetString("undo"))
				}
				client, err := newClient(cmd)
				if err != nil {
					return err
				}
				it, err := client.ToggleChecklistItem(ctx, cmd.GetStringArg("id"), cmd.GetStringArg("template-id"), !undo, cmd.GetString("notes"))
				if err != nil {
					log.Error("checklist toggle failed", "id", cmd.GetStringArg("id"), "template", cmd.GetStringArg("template-id"), "error", err)
					return err
				}
				state := "completed"
				if !it.Completed {
					state = "open"
				}
				fmt.Fprintf(stdout, "Item %s is %s\n", it.TemplateID, state)
				return nil
			},
		},
		{
			Name:        "delete",
			Usage:       "Delete a server",
			Description: "Deletes a server record. Requires the admin token.",
			Arguments:   []cli.Argument{&cli.StringArg{Name: "id", Required: true}},
			Flags:       withConn(),
			Run: func(ctx context.Context, cmd *cli.Command) error {
				client, err := newClient(cmd)
				if err != nil {
					return err
				}
				if err := client.DeleteServer(ctx, cmd.GetStringArg("id")); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Deleted server %s\n", cmd.GetStringArg("id"))
				return nil
			},
		},
	}
	for _, a := range []struct{ name, usage string }{
		{"take", "Take a NEW server into work"},
		{"release", "Return an IN_WORK server to NEW"},
		{"archive", "Archive a DONE server"},
		{"unarchive", "Return an archived server to DONE"},
		{"refresh-lease", "Fill network data from DHCP"},
	} {
		cmds = append(cmds, serverActionCommand(a.name, a.usage))
	}
	return &cli.Command{
		Name:     "server",
		Usage:    "Manage servers",
		Commands: cmds,
	}
}

func serverActionCommand(action, usage string) *cli.Command {
	return &cli.Command{
		Name:      action,
		Usage:     usage,
		Arguments: []cli.Argument{&cli.StringArg{Name: "id", Required: true}},
		Flags:     withConn(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			srv, err := client.ServerAction(ctx, cmd.GetStringArg("id"), action)
			if err != nil {
				log.Error("server action failed", "action", action, "id", cmd.GetStringArg("id"), "error", err)
				return err
			}
			printServer(stdout, srv)
			return nil
		},
	}
}
