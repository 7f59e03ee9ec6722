package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd(version string, buildTime string, gitCommit string) *cobra.Command {
	return &cobra.Command{
		Use:          "version",
		Short:        "telegram-slide-bot version",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "telegram-slide-bot")
			fmt.Fprintln(out, "A telegram bot that prepares PPTX and PDF presentations.")
			fmt.Fprintln(out, "Github: https://github.com/nerdneilsfield/telegram-slide-bot")
			fmt.Fprintf(out, "telegram-slide-bot: %s\n", version)
			fmt.Fprintf(out, "buildTime: %s\n", buildTime)
			fmt.Fprintf(out, "gitCommit: %s\n", gitCommit)
			fmt.Fprintf(out, "goVersion: %s\n", runtime.Version())
		},
	}
}
