package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/tripwire/internal/pattern"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules [file...]",
		Short: "List built-in rule sets and validate rule set files",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range pattern.BuiltinNames() {
				set, err := pattern.Builtin(name)
				if err != nil {
					return err
				}
				var fatal, warning int
				for _, rule := range set.Rules {
					if rule.Severity == pattern.SeverityWarning {
						warning++
					} else {
						fatal++
					}
				}
				fmt.Fprintf(out, "%-10s %d fatal, %d warning rule(s)\n", name, fatal, warning)
			}
			for _, path := range args {
				set, err := pattern.LoadFile(path)
				if err != nil {
					return err
				}
				m, err := pattern.NewMatcher(set)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: rule set %q ok: %s\n", path, set.Name, strings.Join(m.Labels(), ", "))
			}
			return nil
		},
	}
	return cmd
}
