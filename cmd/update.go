package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"m-contain/libcontainer"
	"m-contain/libcontainer/config"
)

// m-contain update 命令
var UpdateCommand = cli.Command{
	Name:      "update",
	Usage:     `update a container's resource limits`,
	UsageText: `m-contain update -policy diff|replace -spec <file|json> <name>`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "policy", // 缺席字段的处理策略
			Usage: "update policy: diff (only set given fields) or replace (reset absent fields)",
			Value: "diff",
		},
		cli.StringFlag{
			Name:  "spec",
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

		var policy config.UpdatePolicy
		switch ctx.String("policy") {
		case "diff":
			policy = config.UpdateDiff
		case "replace":
			policy = config.UpdateReplace
		default:
			return fmt.Errorf("unknown update policy %q", ctx.String("policy"))
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
		if err := c.Update(spec, policy); err != nil {
			return fmt.Errorf("update container %s: %v", name, err)
		}
		return nil
	},
}
