package commands

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/stepd-host/internal/daemonconfig"
)

// WriteConfigCmd implements the 'write-config' command.
type WriteConfigCmd struct {
	Output string `short:"o" help:"Destination file (defaults to launch.config_file in the data directory)"`
}

func (w *WriteConfigCmd) Run(g *Global, root *CLI) error {
	env, err := newEnvironment(root, g.Logger)
	if err != nil {
		return err
	}
	snapshot, err := env.host.Settings()
	if err != nil {
		return err
	}
	dst := w.Output
	if dst == "" {
		dst = env.layout.ConfigPath()
	}
	if _, err := daemonconfig.Write(snapshot, dst); err != nil {
		return err
	}
	args, err := daemonconfig.Args(snapshot, env.layout.ConfigArg())
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", dst)
	fmt.Printf("launch: %s %s\n", env.layout.ArtifactPath(), strings.Join(args, " "))
	return nil
}
