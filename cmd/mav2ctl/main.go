package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var version = "dev"

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "mav2ctl"
	app.Usage = "Build, sign and inspect Modular Account V2 operations"
	app.Version = version

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintf(c.App.Writer, "%s %s\n", c.App.Name, c.App.Version)
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "config file (toml, yaml or json)",
			EnvVars: []string{"MAV2_CONFIG"},
		},
	}

	app.Commands = []*cli.Command{
		nonceCMD,
		deferredCMD,
		addressCMD,
		permissionsCMD,
		sendCMD,
		{
			Name:  "version",
			Usage: "Show version",
			Action: func(c *cli.Context) error {
				cli.VersionPrinter(c)
				return nil
			},
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
