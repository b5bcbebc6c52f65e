package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gorecover",
	Short: "goRecover is a security-question password recovery service",
	Long: `A password recovery and password change service built on security questions.
Complete documentation is available at https://github.com/MrEthical07/goRecover`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
