package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/specialistvlad/ovipipe/internal/app"
)

// EnvPrefix prefixes the environment variables that override flags, e.g.
// OVIPIPE_LOG_LEVEL for --log-level.
const EnvPrefix = "OVIPIPE"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Command names what the invocation asks for.
type Command string

const (
	CommandEval     Command = "eval"
	CommandValidate Command = "validate"
)

// Invocation is the parsed command line.
type Invocation struct {
	Command Command
	Config  *app.Config
}

// Parse processes command-line arguments. It returns the invocation, a
// boolean indicating if the program should exit cleanly, or an ExitError.
// Every flag can also be set through the environment or a config file given
// with --config; flags win over the environment, which wins over the file.
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	slog.Debug("CLI parser started.")
	var inv *Invocation
	root := newRootCmd(output, func(i *Invocation) { inv = i })
	if args == nil {
		// cobra falls back to os.Args for nil.
		args = []string{}
	}
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return nil, false, exitErr
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if inv == nil {
		// Help was printed.
		return nil, true, nil
	}
	slog.Debug("CLI parser finished successfully.", "command", inv.Command, "config", inv.Config)
	return inv, false, nil
}

func newRootCmd(output io.Writer, done func(*Invocation)) *cobra.Command {
	root := &cobra.Command{
		Use:   "ovipipe",
		Short: "Evaluates cached data pipelines declared in HCL.",
		Long: `ovipipe builds the pipelines declared in .hcl files, evaluates them frame by
frame through their caches and reports the results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(output)
	root.SetErr(output)

	pf := root.PersistentFlags()
	pf.String("config", "", "Path to a config file (yaml, json or toml) with flag values.")
	pf.StringP("file", "f", "", "Path to a single .hcl file or a directory of .hcl files.")
	pf.String("log-format", "text", fmt.Sprintf("Log output format. Options: %s.", strings.Join(app.LogFormats, ", ")))
	pf.String("log-level", "info", fmt.Sprintf("Logging level. Options: %s.", strings.Join(app.LogLevels, ", ")))
	pf.Int("workers", 4, "Number of concurrent evaluation workers.")
	pf.StringSlice("disable", nil, "Addresses of modifiers, groups or applications to switch off, e.g. modifier.small.")

	eval := &cobra.Command{
		Use:   "eval [PIPELINE_PATH]",
		Short: "Evaluate pipelines and print a report.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, args, true)
			if err != nil {
				return err
			}
			done(&Invocation{Command: CommandEval, Config: cfg})
			return nil
		},
	}
	ef := eval.Flags()
	ef.StringSlice("pipeline", nil, "Evaluate only the named pipelines. Repeatable.")
	ef.IntSlice("frames", nil, "Source frames to evaluate. Defaults to all frames.")
	ef.StringP("output", "o", "text", fmt.Sprintf("Report format. Options: %s.", strings.Join(app.OutputFormats, ", ")))
	ef.Bool("break-on-error", true, "Stop a pipeline at the first failing stage.")
	ef.Bool("rendering", false, "Evaluate the rendering cache instead of the interactive one.")
	ef.Bool("trajectory-caching", false, "Precompute and keep every frame of all pipelines.")
	ef.Int("metrics-port", 0, "Port for the health and metrics HTTP server. 0 is disabled.")

	validate := &cobra.Command{
		Use:   "validate [PIPELINE_PATH]",
		Short: "Check that the pipeline definitions load and build.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, args, false)
			if err != nil {
				return err
			}
			done(&Invocation{Command: CommandValidate, Config: cfg})
			return nil
		},
	}

	root.AddCommand(eval, validate)
	return root
}

// buildConfig resolves the settings of cmd from its flags, the environment
// and the optional config file.
func buildConfig(cmd *cobra.Command, args []string, evaluating bool) (*app.Config, error) {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return nil, err
	}

	path := v.GetString("file")
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return nil, &ExitError{Code: 2, Message: "no pipeline definitions given: pass PIPELINE_PATH or --file"}
	}

	raw := app.Config{
		PipelinePath: path,
		LogFormat:    strings.ToLower(v.GetString("log-format")),
		LogLevel:     strings.ToLower(v.GetString("log-level")),
		WorkerCount:  v.GetInt("workers"),
		Disable:      v.GetStringSlice("disable"),
		Output:       app.OutputFormats[0],
	}
	if evaluating {
		raw.Pipelines = v.GetStringSlice("pipeline")
		raw.Frames = v.GetIntSlice("frames")
		raw.Output = strings.ToLower(v.GetString("output"))
		raw.BreakOnError = v.GetBool("break-on-error")
		raw.Rendering = v.GetBool("rendering")
		raw.TrajectoryCaching = v.GetBool("trajectory-caching")
		raw.MetricsPort = v.GetInt("metrics-port")
	}

	cfg, err := app.NewConfig(raw)
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, nil
}

func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ExitError{Code: 2, Message: fmt.Sprintf("failed to read config file: %v", err)}
		}
		slog.Debug("Config file loaded.", "path", v.ConfigFileUsed())
	}
	return v, nil
}
