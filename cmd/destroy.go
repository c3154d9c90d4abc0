package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"m-contain/libcontainer"
)

// m-contain destroy 命令
var DestroyCommand = cli.Command{
	Name:      "destroy",
	Usage:     `destroy a container's cgroups`,
	UsageText: `m-contain destroy <name>`,

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
		if err := c.Destroy(); err != nil {
			return fmt.Errorf("destroy container %s: %v", name, err)
		}
		return nil
	},
}
