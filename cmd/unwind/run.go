package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/risor-io/unwind/bytecode"
	"github.com/risor-io/unwind/errz"
	"github.com/risor-io/unwind/vm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a CBOR bytecode file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := loadCode(args[0])
		if err != nil {
			return err
		}
		return execute(cmd.Context(), code, cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().StringP("output", "o", "", "Output format (json or text)")
	runCmd.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(outputFormatsCompletion, cobra.ShellCompDirectiveNoFileComp))
	viper.BindPFlag("output", runCmd.Flags().Lookup("output"))
}

// execute runs code, printing each emitted value as it arrives and then the
// result. Interrupts cancel the run.
func execute(ctx context.Context, code *bytecode.Code, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	format := viper.GetString("output")
	var printErr error
	emitter := func(value any) {
		if printErr != nil {
			return
		}
		printErr = printValue(w, value, format)
	}
	opts := append(getVMOptions(), vm.WithEmitter(emitter))
	result, err := vm.Run(ctx, code, opts...)
	if err != nil {
		return describe(err)
	}
	if printErr != nil {
		return printErr
	}
	if result == nil {
		return nil
	}
	return printValue(w, result, format)
}

func printValue(w io.Writer, value any, format string) error {
	out, err := formatOutput(value, format)
	if err != nil {
		return err
	}
	if out == "" && value == nil {
		out = "nil"
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

// describe renders run errors with their source context and stack.
func describe(err error) error {
	var structured *errz.StructuredError
	if errors.As(err, &structured) {
		return errors.New(strings.TrimSuffix(structured.FriendlyErrorMessage(), "\n"))
	}
	return err
}
