// Command luxselect-explain explains text from a file or stdin on the terminal,
// using the same privacy screen and AI client as the resident app.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"luxselect/src/config"
	"luxselect/src/failure"
	"luxselect/src/llm"
	"luxselect/src/logutil"
	"luxselect/src/privacy"
	"luxselect/src/runtimeinit"
)

const maxInputBytes = 1 << 20

type cliOptions struct {
	filePath   string
	jsonOutput bool
	verbose    bool
	apiKeyPath string
	envFile    string
}

func main() {
	if err := runWithArgs(normalizeLegacyArgs(os.Args), os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		args = []string{"luxselect-explain"}
	}
	opts := &cliOptions{}
	cmd := newRootCmd(opts, stdin, stdout)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions, stdin io.Reader, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "luxselect-explain",
		Short:         "Explain text from a file or stdin",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(cmd.Context(), *opts, stdin, stdout)
		},
	}

	cmd.Flags().StringVar(&opts.filePath, "file", "-", "Path to a text file (use '-' for stdin)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the result as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	cmd.Flags().StringVar(&opts.envFile, "env-file", "", "Path to a .env file")
	return cmd
}

func runWithOptions(ctx context.Context, opts cliOptions, stdin io.Reader, stdout io.Writer) error {
	cfg, err := config.LoadWithOptions(config.LoadOptions{
		EnvFileOverride:    opts.envFile,
		APIKeyPathOverride: opts.apiKeyPath,
		Debug:              opts.verbose,
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !opts.verbose {
		// DEBUG from the environment only applies with --verbose.
		cfg.Debug = false
	}
	_, flush := logutil.Setup(logutil.Options{Debug: cfg.Debug})
	defer flush()
	if err := cfg.Validate(); err != nil {
		return err
	}

	text, err := readInput(opts.filePath, stdin)
	if err != nil {
		return err
	}
	if cfg.EnablePrivacyFilter {
		if v := privacy.New(cfg.PrivacyStrict).Classify(text); !v.Allowed {
			return fmt.Errorf("input blocked: it looks like it contains a %s (%s)", strings.ReplaceAll(string(v.Category), "_", " "), v.Label)
		}
	}

	client := llm.New(runtimeinit.ClientOptions(cfg))
	return explain(ctx, client, cfg.Model, text, opts.jsonOutput, stdout)
}

func readInput(path string, stdin io.Reader) (string, error) {
	var r io.Reader = stdin
	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("failed to read file %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, maxInputBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	if len(data) > maxInputBytes {
		return "", fmt.Errorf("input exceeds maximum size of %d bytes", maxInputBytes)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errors.New("input is empty")
	}
	return text, nil
}

// Result is the --json output.
type Result struct {
	Input       string  `json:"input"`
	Explanation string  `json:"explanation"`
	Model       string  `json:"model"`
	Cached      bool    `json:"cached"`
	Timestamp   string  `json:"timestamp"`
	Duration    float64 `json:"duration_seconds"`
	CharCount   int     `json:"character_count"`
}

// explain streams the answer to out as it arrives, or writes one JSON
// document at the end when jsonOutput is set.
func explain(ctx context.Context, client *llm.Client, model, text string, jsonOutput bool, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	stream := client.Start(ctx, text)
	defer stream.Cancel()

	for {
		c, ok := stream.Next()
		if !ok {
			break
		}
		if !jsonOutput && c.Content != "" {
			if _, err := io.WriteString(out, c.Content); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		if partial := failure.PartialText(err); partial != "" && !jsonOutput {
			fmt.Fprintln(out)
		}
		return fmt.Errorf("explanation failed (%s): %w", failure.KindOf(err), err)
	}

	if !jsonOutput {
		_, err := fmt.Fprintln(out)
		return err
	}
	answer := stream.Text()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(Result{
		Input:       text,
		Explanation: answer,
		Model:       model,
		Cached:      stream.Cached(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).Seconds(),
		CharCount:   len([]rune(answer)),
	})
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	normalized := make([]string, len(args))
	copy(normalized, args)
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"file", "json", "verbose", "api-key-path", "env-file"} {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}
	return normalized
}
