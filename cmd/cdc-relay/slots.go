package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/do/v2"
	"github.com/urfave/cli/v3"
	"github.com/yugabyte/pgx/v5/pgconn"

	"github.com/web3tea/cdc-relay/config"
	"github.com/web3tea/cdc-relay/di"
	"github.com/web3tea/cdc-relay/engine/postgres"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Value:   "config.toml",
	Usage:   "path to the configuration file",
}

var slotsCmd = &cli.Command{
	Name:  "slots",
	Usage: "Inspect replication slots on the configured database",
	Commands: []*cli.Command{
		slotsListCmd,
		slotsDropCmd,
	},
}

var slotsListCmd = &cli.Command{
	Name:  "list",
	Usage: "List replication slots",
	Flags: []cli.Flag{configFlag},
	Action: func(ctx context.Context, c *cli.Command) error {
		conn, err := connectFromConfig(ctx, c.String("config"))
		if err != nil {
			return err
		}
		defer conn.Close(ctx)

		slots, err := postgres.ListReplicationSlots(ctx, conn)
		if err != nil {
			return err
		}

		renderSlots(slots)
		return nil
	},
}

var slotsDropCmd = &cli.Command{
	Name:      "drop",
	Usage:     "Drop a replication slot",
	ArgsUsage: "<slot-name>",
	Flags:     []cli.Flag{configFlag},
	Action: func(ctx context.Context, c *cli.Command) error {
		slotName := c.Args().First()
		if slotName == "" {
			return fmt.Errorf("slot name is required")
		}

		conn, err := connectFromConfig(ctx, c.String("config"))
		if err != nil {
			return err
		}
		defer conn.Close(ctx)

		if err := postgres.DropReplicationSlot(ctx, conn, slotName); err != nil {
			return fmt.Errorf("failed to drop replication slot: %w", err)
		}
		fmt.Printf("replication slot %s dropped\n", slotName)
		return nil
	},
}

func connectFromConfig(ctx context.Context, cfgPath string) (*pgconn.PgConn, error) {
	injector := di.SetupContainer(cfgPath)
	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		return nil, err
	}

	db := cfg.Engine.Database
	if len(db.Hosts) == 0 {
		return nil, fmt.Errorf("no database hosts configured")
	}

	connString := "host=" + db.Hosts[0] + " "
	for k, v := range map[string]string{
		"user":     db.Username,
		"password": db.Password,
		"dbname":   db.Database,
		"port":     fmt.Sprintf("%d", db.Port),
	} {
		if strings.TrimSpace(v) != "" {
			connString += k + "=" + v + " "
		}
	}
	return pgconn.Connect(ctx, connString)
}

func renderSlots(slots []postgres.ReplicationSlotInfo) {
	activeColor := color.New(color.FgGreen).SprintFunc()
	inactiveColor := color.New(color.FgRed).SprintFunc()

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Slot", "Plugin", "Database", "Active", "Restart LSN", "Confirmed Flush LSN", "Retained WAL"})

	for _, slot := range slots {
		active := inactiveColor("no")
		if slot.Active {
			active = activeColor("yes")
		}
		tw.AppendRow(table.Row{
			slot.SlotName,
			slot.Plugin,
			slot.Database,
			active,
			slot.RestartLSN.String(),
			slot.ConfirmedFlushLSN.String(),
			formatBytes(slot.RetainedWALBytes),
		})
	}
	tw.Render()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
