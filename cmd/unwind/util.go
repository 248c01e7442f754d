package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/risor-io/unwind/bytecode"
	"github.com/risor-io/unwind/internal/suggest"
	"github.com/risor-io/unwind/vm"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

func fatal(msg interface{}) {
	var s string
	switch msg := msg.(type) {
	case string:
		s = msg
	case error:
		s = msg.Error()
	default:
		s = fmt.Sprintf("%v", msg)
	}
	fmt.Fprintf(os.Stderr, "%s\n", red(s))
	os.Exit(1)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Reads global flags from Viper and adjusts the environment accordingly.
func processGlobalFlags() error {
	if viper.GetBool("no-color") || !isTerminal(os.Stdout) {
		color.NoColor = true
	}
	_, err := logLevel()
	return err
}

func logLevel() (zerolog.Level, error) {
	name := viper.GetString("log-level")
	if name == "" {
		return zerolog.WarnLevel, nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

func newLogger() zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
		NoColor:    viper.GetBool("no-color") || !isTerminal(os.Stderr),
	}
	level, err := logLevel()
	if err != nil {
		level = zerolog.WarnLevel
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// Returns the VM options selected by global flags, environment and config.
func getVMOptions() []vm.Option {
	opts := []vm.Option{
		vm.WithLogger(newLogger()),
		vm.WithValidation(!viper.GetBool("no-validate")),
	}
	if n := viper.GetInt("check-interval"); n > 0 {
		opts = append(opts, vm.WithContextCheckInterval(n))
	}
	if n := viper.GetInt("max-frames"); n > 0 {
		opts = append(opts, vm.WithMaxFrameDepth(n))
	}
	return opts
}

func loadCode(path string) (*bytecode.Code, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return bytecode.Unmarshal(data)
}

func notFound(kind, name string, candidates []string) error {
	if hint := suggest.Hint(name, candidates); hint != "" {
		return fmt.Errorf("%s %q not found; %s", kind, name, hint)
	}
	return fmt.Errorf("%s %q not found", kind, name)
}
