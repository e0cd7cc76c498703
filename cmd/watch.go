package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/bnema/deadlock-gc/internal/application"
	"github.com/bnema/deadlock-gc/internal/domain"
)

func newWatchCmd(app *app) *cobra.Command {
	var opts sessionOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print session changes and coordinator events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := &eventPrinter{out: cmd.OutOrStdout(), app: app}

			opts.hooks = application.Hooks{
				OnStateChange: printer.stateChanged,
				OnError:       printer.failed,
			}
			opts.subscribe = func(client *application.Client) {
				client.OnWelcome(printer.welcome)
				client.OnDevPlaytestStatus(printer.playtestStatus)
			}

			err := runSession(cmd, app, opts, func(ctx context.Context, _ *application.Client) error {
				<-ctx.Done()
				return nil
			})
			if stopped := cmd.Context().Err(); stopped != nil && errors.Is(err, stopped) {
				return nil
			}
			return err
		},
	}

	addSessionFlags(cmd, &opts, 0)

	return cmd
}

// eventPrinter writes one line per session event.
type eventPrinter struct {
	mu  sync.Mutex
	out io.Writer
	app *app
}

func (p *eventPrinter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = fmt.Fprintf(p.out, "%s "+format+"\n", append([]any{p.app.now().Format("15:04:05")}, args...)...)
}

func (p *eventPrinter) stateChanged(from, to domain.SessionState) {
	p.printf("state %s -> %s", from, to)
}

func (p *eventPrinter) failed(err error) {
	p.printf("error %v", err)
}

func (p *eventPrinter) welcome(w domain.Welcome) {
	p.printf("welcome version=%d country=%q", w.Version, w.CountryCode)
}

func (p *eventPrinter) playtestStatus(s domain.DevPlaytestStatus) {
	p.printf("playtest status=%d", s.Status)
}
