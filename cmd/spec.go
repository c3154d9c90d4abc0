package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"m-contain/libcontainer"
)

// m-contain spec 命令：Update 的逆操作，从内核状态重建规格
var SpecCommand = cli.Command{
	Name:      "spec",
	Usage:     `reconstruct a container's resource spec from kernel state`,
	UsageText: `m-contain spec <name>`,

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
		spec, err := c.Spec()
		if err != nil {
			return fmt.Errorf("spec for container %s: %v", name, err)
		}
		return printJSON(spec)
	},
}
