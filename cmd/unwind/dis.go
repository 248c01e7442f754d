package main

import (
	"github.com/risor-io/unwind/bytecode"
	"github.com/risor-io/unwind/dis"
	"github.com/spf13/cobra"
)

var disCmd = &cobra.Command{
	Use:   "dis <file>",
	Short: "Disassemble a CBOR bytecode file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := loadCode(args[0])
		if err != nil {
			return err
		}
		funcName, _ := cmd.Flags().GetString("func")
		return disassemble(cmd, code, funcName)
	},
}

func init() {
	disCmd.Flags().String("func", "", "Function to disassemble")
}

func disassemble(cmd *cobra.Command, code *bytecode.Code, funcName string) error {
	// If a function name was provided, disassemble its code only
	if funcName != "" {
		var fn *bytecode.Function
		var names []string
	search:
		for _, c := range code.Flatten() {
			for _, f := range c.Functions() {
				names = append(names, f.Name())
				if f.Name() == funcName {
					fn = f
					break search
				}
			}
		}
		if fn == nil {
			return notFound("function", funcName, names)
		}
		instructions, err := dis.Disassemble(fn.Code())
		if err != nil {
			return err
		}
		dis.Print(instructions, cmd.OutOrStdout())
		return nil
	}
	return dis.PrintAll(code, cmd.OutOrStdout())
}
