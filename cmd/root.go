package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/cKV/cmd/document"
	"github.com/ValentinKolb/cKV/cmd/serve"
	"github.com/ValentinKolb/cKV/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "ckv",
		Short: "continuous versioned document store",
		Long: fmt.Sprintf(`cKV (v%s)

A versioned document store written in Go. Every change creates a new version,
transactions read a consistent snapshot and commit optimistically.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cKV v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(document.DocumentCommands)
	RootCmd.AddCommand(versionCmd)

	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
