package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli"

	"m-contain/libcontainer/config"
)

// m-contain init-machine 命令：机器级的一次性设置。
// 幂等，对已初始化的机器重复执行同样成功
var InitMachineCommand = cli.Command{
	Name:      "init-machine",
	Usage:     `perform machine-wide one-time cgroup setup`,
	UsageText: `m-contain init-machine [-buckets 1,5,10]`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "buckets", // 机器级的调度直方图桶边界
			Usage: "comma separated cpu histogram bucket bounds",
		},
	},

	Action: func(ctx *cli.Context) error {
		spec := &config.MachineSpec{}
		if raw := ctx.String("buckets"); raw != "" {
			for _, part := range strings.Split(raw, ",") {
				b, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
				if err != nil {
					return fmt.Errorf("bad bucket value %q: %v", part, err)
				}
				spec.CpuHistogramBuckets = append(spec.CpuHistogramBuckets, b)
			}
		}

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		if err := rt.factories.InitMachine(spec); err != nil {
			return fmt.Errorf("init machine: %v", err)
		}
		return nil
	},
}
