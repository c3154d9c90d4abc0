package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli"

	"m-contain/libcontainer/cgroup"
	"m-contain/libcontainer/cgroup/notify"
	"m-contain/libcontainer/config"
	"m-contain/libcontainer/kernel"
)

// runtime 是一条命令运行期间的进程级对象：
// 内核接口、事件派发器和工厂集合各构造一次，命令结束时整体回收
type runtime struct {
	kernel     kernel.API
	dispatcher *notify.Dispatcher
	factories  *cgroup.FactorySet
}

func newRuntime() (*runtime, error) {
	k := kernel.New()
	d, err := notify.NewDispatcher(k)
	if err != nil {
		return nil, fmt.Errorf("create notification dispatcher: %v", err)
	}
	fs, err := cgroup.NewFactorySet(k, d)
	if err != nil {
		d.Stop()
		return nil, err
	}
	return &runtime{kernel: k, dispatcher: d, factories: fs}, nil
}

func (r *runtime) close() {
	r.dispatcher.Stop()
}

// containerNameArg 取出命令的容器名参数
func containerNameArg(ctx *cli.Context) (string, error) {
	if ctx.NArg() < 1 {
		return "", fmt.Errorf("missing container name")
	}
	return ctx.Args().First(), nil
}

// loadSpec 解析 -spec 的值：以 { 开头按内联 JSON 处理，否则当作文件路径
func loadSpec(ctx *cli.Context) (*config.ContainerSpec, error) {
	raw := ctx.String("spec")
	if raw == "" {
		return nil, nil
	}

	data := []byte(raw)
	if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		var err error
		data, err = os.ReadFile(raw)
		if err != nil {
			return nil, fmt.Errorf("read spec file %s: %v", raw, err)
		}
	}

	spec := &config.ContainerSpec{}
	if err := json.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("parse container spec: %v", err)
	}
	return spec, nil
}

// printJSON 把结果对象以缩进 JSON 打到标准输出
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
