package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/stepd-host/cmd/stepd-host/commands"
	ferrors "git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
	"git.home.luguber.info/inful/stepd-host/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("stepd-host"),
		kong.Description("Keeps a step daemon built, configured and running behind a serial-like pipe."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	err := parser.Run(&commands.Global{Logger: cli.Logger()}, cli)
	if err != nil {
		adapter := ferrors.NewCLIErrorAdapter(cli.Verbose, cli.Logger())
		adapter.Log(err)
		fmt.Fprintln(os.Stderr, adapter.FormatError(err))
		os.Exit(adapter.ExitCodeFor(err))
	}
}
