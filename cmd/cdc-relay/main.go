package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "cdc-relay",
		Usage: "Capture database changes and relay them to a downstream channel",
		Commands: []*cli.Command{
			runCmd,
			slotsCmd,
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
