package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"m-contain/libcontainer"
)

// m-contain create 命令
var CreateCommand = cli.Command{
	Name:      "create",
	Usage:     `create cgroups for a container`,
	UsageText: `m-contain create -spec <file|json> <name>`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "spec", // 容器的资源规格
			Usage: "resource spec as a JSON file path or inline JSON",
		},
	},

	Action: func(ctx *cli.Context) error {
		name, err := containerNameArg(ctx)
		if err != nil {
			return err
		}
		spec, err := loadSpec(ctx)
		if err != nil {
			return err
		}

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		c, err := libcontainer.CreateContainer(rt.factories, name, spec)
		if err != nil {
			return fmt.Errorf("create container %s: %v", name, err)
		}
		log.Debugf("created container %s with resources %v", name, c.Resources())
		fmt.Println(name)
		return nil
	},
}
