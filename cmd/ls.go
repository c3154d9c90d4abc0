package cmd

import (
	"fmt"
	"os"
	"path"
	"strings"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"m-contain/libcontainer"
)

// m-contain ls 命令
var ListCommand = cli.Command{
	Name:      "ls",
	Usage:     `list the subcontainers of a container`,
	UsageText: `m-contain ls [name]`,

	Action: func(ctx *cli.Context) error {
		name := "/"
		if ctx.NArg() >= 1 {
			name = ctx.Args().First()
		}

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		if err := listSubcontainers(rt, name); err != nil {
			return fmt.Errorf("list subcontainers of %s: %v", name, err)
		}
		return nil
	},
}

// 列出 name 的直接子容器，并展示每个子容器参与了哪些层级
func listSubcontainers(rt *runtime, name string) error {
	parent, err := libcontainer.GetContainer(rt.factories, name)
	if err != nil {
		return err
	}
	subs, err := parent.ListSubcontainers()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 12, 1, 3, ' ', 0)
	fmt.Fprintf(w, "NAME\tRESOURCES\n")
	for _, sub := range subs {
		subName := path.Join(name, sub)
		c, err := libcontainer.GetContainer(rt.factories, subName)
		if err != nil {
			log.Warnf("get container %s error: %v", subName, err)
			continue
		}
		var resources []string
		for _, t := range c.Resources() {
			resources = append(resources, string(t))
		}
		fmt.Fprintf(w, "%s\t%s\n", subName, strings.Join(resources, ","))
	}
	return w.Flush()
}
