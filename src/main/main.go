// Command luxselect explains whatever text the user selects, in a floating
// panel, using an OpenAI-compatible chat endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"luxselect/src/config"
	"luxselect/src/singleinstance"
)

type mainOptions struct {
	trigger    bool
	console    bool
	envFile    string
	apiKeyPath string
	debug      bool
}

func (o mainOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		EnvFileOverride:    o.envFile,
		APIKeyPathOverride: o.apiKeyPath,
		Debug:              o.debug,
	}
}

func main() {
	if err := runWithArgs(normalizeLegacyArgs(os.Args)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"luxselect"}
	}
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "luxselect",
		Short:         "Explain selected text with an AI model",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.trigger {
				// Load .env early so SINGLEINSTANCE_PORT_* apply to the scan.
				if _, err := config.LoadWithOptions(opts.loadOptions()); err != nil {
					return err
				}
				return handleTrigger(cmd.Context(), singleinstance.NewClient())
			}
			return runResident(*opts)
		},
	}

	cmd.Flags().BoolVar(&opts.trigger, "trigger", false, "Ask the running instance to explain the current selection, then exit")
	cmd.Flags().BoolVar(&opts.console, "console", false, "Print explanations to the terminal instead of a window")
	cmd.Flags().StringVar(&opts.envFile, "env-file", "", "Path to a .env file (overrides the default lookup)")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	return cmd
}

// normalizeLegacyArgs maps Go-style single-dash long flags to cobra's double dash.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	long := []string{"trigger", "console", "env-file", "api-key-path", "debug"}

	normalized := make([]string, len(args))
	copy(normalized, args)
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range long {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}
	return normalized
}

type triggerClient interface {
	Trigger(ctx context.Context) error
}

func handleTrigger(ctx context.Context, client triggerClient) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := client.Trigger(ctx)
	if errors.Is(err, singleinstance.ErrNoResident) {
		return errors.New("luxselect is not running; start it first")
	}
	return err
}
