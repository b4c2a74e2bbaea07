package main

import (
	"context"
	"strings"

	"github.com/paularlott/cli"

	"github.com/tphummel/rackline/internal/models"
)

func rackCommand() *cli.Command {
	return &cli.Command{
		Name:  "rack",
		Usage: "Manage racks and unit placement",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List racks",
				Flags: withConn(),
				Run: func(ctx context.Context, cmd *cli.Command) error {
					client, err := newClient(cmd)
					if err != nil {
						return err
					}
					racks, err := client.ListRacks(ctx)
					if err != nil {
						return err
					}
					printRacks(stdout, racks)
					return nil
				},
			},
			{
				Name:      "units",
				Usage:     "Show the units of a rack",
				Arguments: []cli.Argument{&cli.StringArg{Name: "rack", Required: true}},
				Flags:     withConn(),
				Run: func(ctx context.Context, cmd *cli.Command) error {
					client, err := newClient(cmd)
					if err != nil {
						return err
					}
					rack, err := client.GetRack(ctx, cmd.GetStringArg("rack"))
					if err != nil {
						return err
					}
					printUnits(stdout, rack.Units)
					return nil
				},
			},
			{
				Name:  "place",
				Usage: "Place a server in an empty unit",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "rack", Required: true},
					&cli.StringArg{Name: "unit", Required: true},
					&cli.StringArg{Name: "server", Required: true},
				},
				Flags: withConn(
					&cli.StringFlag{Name: "hostname", Usage: "Hostname in this unit"},
					&cli.StringFlag{Name: "mgmt-ip", Usage: "Management IP"},
					&cli.StringFlag{Name: "mgmt-mac", Usage: "Management MAC"},
					&cli.StringFlag{Name: "data-ip", Usage: "Data IP"},
					&cli.StringFlag{Name: "data-mac", Usage: "Data MAC"},
					&cli.StringFlag{Name: "notes", Usage: "Notes"},
				),
				Run: func(ctx context.Context, cmd *cli.Command) error {
					client, err := newClient(cmd)
					if err != nil {
						return err
					}
					unit, err := unitArg(cmd, "unit")
					if err != nil {
						return err
					}
					u, err := client.PlaceInUnit(ctx, cmd.GetStringArg("rack"), unit, cmd.GetStringArg("server"), models.UnitData{
						Hostname:       cmd.GetString("hostname"),
						MgmtIPAddress:  cmd.GetString("mgmt-ip"),
						MgmtMACAddress: cmd.GetString("mgmt-mac"),
						DataIPAddress:  cmd.GetString("data-ip"),
						DataMACAddress: cmd.GetString("data-mac"),
						Notes:          cmd.GetString("notes"),
					})
					if err != nil {
						return err
					}
					printUnit(stdout, u)
					return nil
				},
			},
			unitActionCommand("take", "Install a placed unit and take its server into work"),
			unitActionCommand("remove", "Empty a unit"),
		},
	}
}

func unitActionCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "rack", Required: true},
			&cli.StringArg{Name: "unit", Required: true},
		},
		Flags: withConn(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			unit, err := unitArg(cmd, "unit")
			if err != nil {
				return err
			}
			var u *models.RackUnit
			if name == "take" {
				u, err = client.TakeUnitToWork(ctx, cmd.GetStringArg("rack"), unit)
			} else {
				u, err = client.RemoveFromUnit(ctx, cmd.GetStringArg("rack"), unit)
			}
			if err != nil {
				return err
			}
			printUnit(stdout, u)
			return nil
		},
	}
}

func clusterCommand() *cli.Command {
	return &cli.Command{
		Name:  "cluster",
		Usage: "Manage cluster membership",
		Commands: []*cli.Command{
			{
				Name:  "add-servers",
				Usage: "Add servers to a cluster",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "cluster", Required: true},
					&cli.StringArg{Name: "servers", Required: true},
				},
				Flags: withConn(&cli.StringFlag{Name: "role", Usage: "MASTER, WORKER, STORAGE or GATEWAY", DefaultValue: "WORKER"}),
				Run: func(ctx context.Context, cmd *cli.Command) error {
					client, err := newClient(cmd)
					if err != nil {
						return err
					}
					res, err := client.AddServersToCluster(ctx, cmd.GetStringArg("cluster"),
						parseList(cmd.GetStringArg("servers")), strings.ToUpper(cmd.GetString("role")))
					if err != nil {
						return err
					}
					printBatchResult(stdout, res)
					return nil
				},
			},
		},
	}
}
