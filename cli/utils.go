package cli

import (
	"fmt"

	"github.com/fatih/color"
	prettyjson "github.com/hokaccha/go-prettyjson"
	"github.com/spf13/cobra"
)

var errColor = color.New(color.FgRed, color.Bold)

func logJSONCmd(cmd cobra.Command, v any) {
	out, err := prettyjson.Marshal(v)
	if err != nil {
		logErrorCmd(cmd, err)

		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
}

func logErrorCmd(cmd cobra.Command, err error) {
	fmt.Fprintln(cmd.ErrOrStderr(), errColor.Sprintf("error: %s", err))
}

func logUsageCmd(cmd cobra.Command, usage string) {
	fmt.Fprintf(cmd.ErrOrStderr(), "usage: %s\n", usage)
}

func logOKCmd(cmd cobra.Command, msg string) {
	fmt.Fprintln(cmd.OutOrStdout(), color.GreenString(msg))
}
