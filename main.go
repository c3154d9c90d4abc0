package main

import (
	"os"

	"github.com/urfave/cli"

	log "github.com/sirupsen/logrus"

	"m-contain/cmd"
)

const (
	usage = `a cgroup-based container resource manager.

It creates, updates and destroys per-resource control groups for containers,
translating structured resource specs into kernel control-file writes and back.`
)

// main 函数是整个程序的入口
// 使用的是 github.com/urfave/cli 框架来构建命令行工具
func main() {
	app := cli.NewApp()
	app.Name = "m-contain"
	app.Usage = usage

	// 添加 create 等子命令
	app.Commands = []cli.Command{
		cmd.InitMachineCommand,
		cmd.CreateCommand,
		cmd.DestroyCommand,
		cmd.UpdateCommand,
		cmd.StatsCommand,
		cmd.SpecCommand,
		cmd.EnterCommand,
		cmd.ListCommand,
		cmd.NotifyCommand,
	}
	// 全局 flag
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug", // 启用 debug 模式
			Usage: "enable debug mode",
		},
	}
	app.Before = func(context *cli.Context) error {
		// 设置日志格式
		log.SetFormatter(&log.TextFormatter{
			ForceColors:   true,
			FullTimestamp: true,
		})
		// 设置日志级别
		if context.Bool("debug") {
			log.SetLevel(log.DebugLevel)
		}

		log.SetOutput(os.Stdout)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
