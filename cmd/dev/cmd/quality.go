package cmd

import (
	"fmt"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

// QualityCmds returns the test and lint commands.
func QualityCmds() []*cobra.Command {
	steps := []struct {
		use, short, what string
		run              func() error
	}{
		{"test", "Run unit tests", "tests", func() error { return test.Test() }},
		{"lint", "Run linters", "linting", func() error { return test.Lint() }},
		{"integration-test", "Run tests against attached hardware", "integration testing", func() error { return test.Integ() }},
	}
	cmds := make([]*cobra.Command, 0, len(steps))
	for _, s := range steps {
		cmds = append(cmds, &cobra.Command{
			Use:   s.use,
			Short: s.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := s.run(); err != nil {
					return fmt.Errorf("failed to run %s: %w", s.what, err)
				}
				return nil
			},
		})
	}
	return cmds
}
