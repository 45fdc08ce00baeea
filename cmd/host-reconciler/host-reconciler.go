// Copyright 2019 Hewlett Packard Enterprise Development LP

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	log "github.com/hpe-storage/common-host-libs/logger"
	"github.com/hpe-storage/common-host-libs/util"

	"github.com/powerstore-tools/host-reconciler/pkg/config"
	"github.com/powerstore-tools/host-reconciler/pkg/reconciler"
	"github.com/powerstore-tools/host-reconciler/pkg/storageprovider/powerstore"
)

const (
	reconcilerVersion = "0.1"
	defaultLogFile    = "/var/log/host-reconciler.log"
)

var (
	// Flag variables for the command options
	specFile   string
	configFile string
	logFile    string
	jsonOutput bool

	// RootCmd is the main host-reconciler command
	RootCmd = &cobra.Command{
		Use:   "host-reconciler",
		Short: "Storage array host reconciliation utility",
		Long:  `A command-line utility that converges a storage array host (initiator group) with a desired-state document`,
	}

	// applyCmd runs one reconciliation pass for a desired-state document
	applyCmd = &cobra.Command{
		Use:   "apply",
		Short: "Apply a desired-state host document to the array",
		Run: func(cmd *cobra.Command, args []string) {
			log.InitLogging(logFile, nil, true)
			log.Infof(">>>>> CMDLINE Exec, version %s, args: %v", reconcilerVersion, args)
			defer log.Info("<<<<< CMDLINE Exec")

			if err := applyCliHandler(); err != nil {
				log.Errorf("Failed to execute CLI handler, Err: %v", err.Error())
				fmt.Fprintf(os.Stderr, "%v\n", err)
				os.Exit(1)
			}
		},
	}
)

// Initialize cmd-line flags/commands
func init() {
	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Array connection config file")
	RootCmd.PersistentFlags().StringVarP(&logFile, "log-file", "l", defaultLogFile, "Log file path")
	RootCmd.PersistentFlags().BoolP("help", "h", false, "Show help information")

	applyCmd.Flags().StringVarP(&specFile, "file", "f", "", "Desired-state host document (YAML)")
	applyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	RootCmd.AddCommand(applyCmd)
}

func applyCliHandler() error {
	log.Trace(">>>>> applyCliHandler")
	defer log.Trace("<<<<< applyCliHandler")

	if specFile == "" {
		return fmt.Errorf("A desired-state host document is required, use --file")
	}
	exists, isDir, err := util.FileExists(specFile)
	if err != nil {
		return fmt.Errorf("Error while processing the filepath %v, err: %v", specFile, err.Error())
	}
	if !exists || isDir {
		return fmt.Errorf("Host document %v does not exist", specFile)
	}

	conf, err := config.Load(configFile)
	if err != nil {
		return err
	}

	spec, err := config.LoadHostSpec(specFile)
	if err != nil {
		return err
	}

	provider, err := powerstore.NewHostStorageProvider(conf.Credentials())
	if err != nil {
		return fmt.Errorf("Failed to connect to array %v, err: %v", conf.Array.Endpoint, err.Error())
	}

	result, err := reconciler.NewHostReconciler(provider).Reconcile(spec)
	if err != nil {
		return err
	}

	return printResult(os.Stdout, result, jsonOutput)
}

// printResult writes the reconciliation verdict to the given writer
func printResult(w io.Writer, result *reconciler.Result, asJSON bool) error {
	if asJSON {
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(output))
		return nil
	}
	fmt.Fprintf(w, "changed: %v\n", result.Changed)
	if result.HostDetails != nil {
		fmt.Fprintf(w, "host: %s (id: %s, os_type: %s, initiators: %d)\n",
			result.HostDetails.Name, result.HostDetails.ID,
			result.HostDetails.OSType, len(result.HostDetails.HostInitiators))
	}
	return nil
}

// Main runs the reconciler interpreting command-line flags and commands
func Main() {
	if err := RootCmd.Execute(); err != nil {
		log.Error("Failed to execute, err:", err.Error())
		os.Exit(1)
	}
}

func main() {
	Main()
}
