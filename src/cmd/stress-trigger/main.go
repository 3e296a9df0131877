// Command stress-trigger fires concurrent remote triggers at a running
// LuxSelect to exercise debounce and single-flight under load.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"luxselect/src/singleinstance"
)

type stressOptions struct {
	n        int
	spacing  time.Duration
	deadline time.Duration
}

type triggerClient interface {
	Trigger(ctx context.Context) error
}

// tally counts trigger outcomes.
type tally struct {
	ok, refused, absent, failed atomic.Int32
}

func (t *tally) String() string {
	return fmt.Sprintf("ok=%d refused=%d absent=%d err=%d", t.ok.Load(), t.refused.Load(), t.absent.Load(), t.failed.Load())
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts, func() triggerClient { return singleinstance.NewClient() }, os.Stdout)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions, newClient func() triggerClient, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-trigger",
		Short:         "Stress test remote trigger delegation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			t := fire(*opts, newClient)
			fmt.Fprintf(out, "launched=%d %s elapsed=%s\n", opts.n, t, time.Since(start))
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of clients to launch")
	cmd.Flags().DurationVar(&opts.spacing, "spacing", 0, "delay between client launches")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")
	return cmd
}

func fire(opts stressOptions, newClient func() triggerClient) *tally {
	var wg sync.WaitGroup
	t := &tally{}
	for i := 0; i < opts.n; i++ {
		if i > 0 && opts.spacing > 0 {
			time.Sleep(opts.spacing)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opts.deadline)
			defer cancel()
			err := newClient().Trigger(ctx)
			switch {
			case err == nil:
				t.ok.Add(1)
			case errors.Is(err, singleinstance.ErrNoResident):
				t.absent.Add(1)
			case strings.Contains(err.Error(), "refused"):
				t.refused.Add(1)
			default:
				t.failed.Add(1)
			}
		}()
	}
	wg.Wait()
	return t
}
