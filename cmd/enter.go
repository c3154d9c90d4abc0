package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"m-contain/libcontainer"
)

// m-contain enter 命令：把一个已存在的线程移入容器的各个层级
var EnterCommand = cli.Command{
	Name:      "enter",
	Usage:     `move a thread into a container's cgroups`,
	UsageText: `m-contain enter -pid <pid> <name>`,
	Flags: []cli.Flag{
		cli.IntFlag{
			Name:  "pid",
			Usage: "thread id to move into the container",
		},
	},

	Action: func(ctx *cli.Context) error {
		name, err := containerNameArg(ctx)
		if err != nil {
			return err
		}
		pid := ctx.Int("pid")
		if pid <= 0 {
			return fmt.Errorf("missing or invalid -pid")
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
		if err := c.Enter(pid); err != nil {
			return fmt.Errorf("enter container %s: %v", name, err)
		}
		return nil
	},
}
