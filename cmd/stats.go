package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"m-contain/libcontainer"
	"m-contain/libcontainer/config"
)

// m-contain stats 命令
var StatsCommand = cli.Command{
	Name:      "stats",
	Usage:     `show a container's resource statistics`,
	UsageText: `m-contain stats [-full] <name>`,
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "full", // 额外读取昂贵/可选的统计
			Usage: "include expensive and optional statistics",
		},
	},

	Action: func(ctx *cli.Context) error {
		name, err := containerNameArg(ctx)
		if err != nil {
			return err
		}

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		c, err := libcontainer.GetContainer(rt.factories, name)
		if err != nil {
			return fmt.Errorf("get container %s: %v", name, err)
		}

		t := config.StatsSummary
		if ctx.Bool("full") {
			t = config.StatsFull
		}
		stats, err := c.Stats(t)
		if err != nil {
			return fmt.Errorf("stats for container %s: %v", name, err)
		}
		return printJSON(stats)
	},
}
