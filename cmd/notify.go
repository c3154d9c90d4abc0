package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"m-contain/libcontainer"
	"m-contain/libcontainer/config"
)

// m-contain notify 命令：注册一个内核事件通知并阻塞等待。
// 事件每次发生都会打一行到标准输出，Ctrl-C 注销退出
var NotifyCommand = cli.Command{
	Name:      "notify",
	Usage:     `wait for kernel events on a container`,
	UsageText: `m-contain notify [-oom] [-threshold <bytes>] [-metrics-addr <addr>] <name>`,
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "oom", // 订阅 OOM 事件
			Usage: "subscribe to out-of-memory events",
		},
		cli.Uint64Flag{
			Name:  "threshold", // 订阅内存用量阈值事件
			Usage: "subscribe to a memory usage threshold (bytes)",
		},
		cli.StringFlag{
			Name:  "metrics-addr", // 暴露派发器的运行指标
			Usage: "serve prometheus metrics on this address, eg: -metrics-addr :9090",
		},
	},

	Action: func(ctx *cli.Context) error {
		name, err := containerNameArg(ctx)
		if err != nil {
			return err
		}

		es := &config.EventSpec{}
		if ctx.Bool("oom") {
			es.Oom = &config.OomEvent{}
		}
		if ctx.Uint64("threshold") > 0 {
			es.MemoryThreshold = &config.MemoryThresholdEvent{Usage: ctx.Uint64("threshold")}
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

		handle, err := c.RegisterNotification(es, func(cgroupPath string, cbErr error) {
			if cbErr != nil {
				log.Errorf("notification on %s failed: %v", cgroupPath, cbErr)
				return
			}
			fmt.Printf("event fired on %s\n", cgroupPath)
		})
		if err != nil {
			return fmt.Errorf("register notification on %s: %v", name, err)
		}

		if addr := ctx.String("metrics-addr"); addr != "" {
			go func() {
				http.Handle("/metrics", promhttp.Handler())
				if err := http.ListenAndServe(addr, nil); err != nil {
					log.Errorf("metrics server error: %v", err)
				}
			}()
			log.Debugf("serving metrics on %s", addr)
		}

		// 阻塞到收到终止信号，再显式注销
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		if err := c.UnregisterNotification(handle); err != nil {
			return fmt.Errorf("unregister notification %d: %v", handle, err)
		}
		return nil
	},
}
