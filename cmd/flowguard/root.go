package main

import (
	"io"
	"os"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/flowguard/pkg/config"
	"github.com/vnykmshr/flowguard/pkg/datasource"
	"github.com/vnykmshr/flowguard/pkg/flow"

	// Registers the token_bucket custom controller.
	_ "github.com/vnykmshr/flowguard/pkg/ratelimit/bucket"
	_ "github.com/vnykmshr/flowguard/pkg/ratelimit/leakybucket"
)

type globalFlags struct {
	logLevel string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	log := logger.New()

	root := &cobra.Command{
		Use:   "flowguard",
		Short: "Inspect and publish flowguard flow rules",
		Long: `flowguard works with flow rule documents: YAML or JSON lists of rules
as read by the flowguard file and Redis datasources.

Settings not given as flags are read from FLOWGUARD_* environment
variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.SetOutput(cmd.ErrOrStderr())
			s, err := config.LoadSettings()
			if err != nil {
				return err
			}
			if flags.logLevel != "" {
				s.LogLevel = flags.logLevel
			}
			if flags.verbose {
				s.LogLevel = "debug"
			}
			return s.ConfigureLogger(log)
		},
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (default from FLOWGUARD_LOG_LEVEL)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newCheckCmd(log))
	root.AddCommand(newPushCmd(log))
	root.AddCommand(newSimulateCmd(log))
	return root
}

// readRules reads a rule document from path, or stdin for "-".
func readRules(cmd *cobra.Command, path string) ([]flow.Rule, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return datasource.ParseRules(data)
}
