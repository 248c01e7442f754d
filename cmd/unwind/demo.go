package main

import (
	"os"

	"github.com/risor-io/unwind/bytecode"
	"github.com/risor-io/unwind/internal/table"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo [name]",
	Short: "List, run, disassemble or export the built-in scenarios",
	Args:  cobra.MaximumNArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return scenarioNames(), cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			listScenarios(cmd)
			return nil
		}
		s, ok := findScenario(args[0])
		if !ok {
			return notFound("scenario", args[0], scenarioNames())
		}
		code, err := s.compile()
		if err != nil {
			return err
		}
		if out, _ := cmd.Flags().GetString("out"); out != "" {
			return writeCode(code, out)
		}
		if showDis, _ := cmd.Flags().GetBool("dis"); showDis {
			return disassemble(cmd, code, "")
		}
		return execute(cmd.Context(), code, cmd.OutOrStdout())
	},
}

func init() {
	demoCmd.Flags().Bool("dis", false, "Disassemble instead of running")
	demoCmd.Flags().String("out", "", "Write the compiled scenario to a CBOR file")
}

func listScenarios(cmd *cobra.Command) {
	var rows [][]string
	for _, s := range scenarios {
		rows = append(rows, []string{yellow(s.name), s.description})
	}
	table.NewTable(cmd.OutOrStdout()).
		WithHeader([]string{"NAME", "DESCRIPTION"}).
		WithHeaderAlignment([]table.Alignment{table.AlignCenter, table.AlignCenter}).
		WithRows(rows).
		Render()
}

func writeCode(code *bytecode.Code, path string) error {
	data, err := bytecode.Marshal(code)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
