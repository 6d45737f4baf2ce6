package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/flowguard/pkg/flow"
)

var errInvalidRules = errors.New("rule document has invalid rules")

func newCheckCmd(log *logger.Logger) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "check FILE",
		Short: "Validate a rule document",
		Long: `Validate a rule document and print the rules it publishes, in the order
they are checked. Use "-" to read from stdin. The command fails when the
document cannot be parsed or any rule is rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := readRules(cmd, args[0])
			if err != nil {
				return err
			}
			return checkRules(cmd.OutOrStdout(), rules, quiet, log)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only report problems")
	return cmd
}

func checkRules(out io.Writer, rules []flow.Rule, quiet bool, log *logger.Logger) error {
	cfg := flow.DefaultConfig()
	cfg.Logger = log
	m, err := flow.NewManager(cfg)
	if err != nil {
		return err
	}

	_, loadErr := m.LoadRules(rules)
	published := m.Rules()
	if !quiet {
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RESOURCE\tLIMIT APP\tKIND\tTHRESHOLD\tSTRATEGY\tBEHAVIOR")
		for _, r := range published {
			resource := r.Resource
			if r.Regex {
				resource = "/" + resource + "/"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%s\t%s\n",
				resource, r.LimitApp, r.ThresholdKind, r.Threshold, r.Strategy, r.ControlBehavior)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if loadErr != nil {
		fmt.Fprintf(out, "rejected:\n%v\n", loadErr)
		return errInvalidRules
	}
	if !quiet {
		fmt.Fprintf(out, "%d rules ok\n", len(published))
	}
	return nil
}
