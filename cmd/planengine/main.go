// Command planengine is the program-level entry point for the plan
// execution engine: the eleven subcommands it exposes (create-plan, run,
// status, errors, doctor, repair-db, export, reset-db, reset-failed,
// llm-calls, contract-audit) replace the dashboard HTTP API and Tk UI the
// original agent_cli.py/agent_ui.py shipped alongside, neither of which is
// in scope here.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		if ee, ok := asEngineError(err); ok {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ee)
			os.Exit(exitCodeFor(ee))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	dbPath     string
	configPath string
	workspace  string
	verbose    bool
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "planengine",
		Short:         "Two-agent plan generation and execution engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "planengine.db", "path to the state database")
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "config.json", "path to the JSON configuration file")
	cmd.PersistentFlags().StringVar(&flags.workspace, "workspace", ".", "workspace root (inputs/artifacts/reviews/required_docs)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newCreatePlanCmd(flags),
		newRunCmd(flags),
		newStatusCmd(flags),
		newErrorsCmd(flags),
		newDoctorCmd(flags),
		newRepairDBCmd(flags),
		newExportCmd(flags),
		newResetDBCmd(flags),
		newResetFailedCmd(flags),
		newLLMCallsCmd(flags),
		newContractAuditCmd(flags),
	)
	return cmd
}

func (f *globalFlags) logger() *zap.Logger {
	var cfg zap.Config
	if f.verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
