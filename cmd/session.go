package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/deadlock-gc/internal/application"
	"github.com/bnema/deadlock-gc/internal/domain"
)

const defaultReadyTimeout = time.Minute

type sessionOptions struct {
	accountID string
	// readyTimeout bounds the wait for Ready. Zero waits until interrupted.
	readyTimeout time.Duration
	spinner      bool
	// failFast aborts the wait on the first authentication or logon failure.
	failFast bool
	hooks    application.Hooks
	// subscribe registers event handlers before the first connect.
	subscribe func(*application.Client)
}

func addSessionFlags(cmd *cobra.Command, opts *sessionOptions, wait time.Duration) {
	cmd.Flags().StringVar(&opts.accountID, "account", "", "Account id (default: the account config key)")
	cmd.Flags().DurationVar(&opts.readyTimeout, "wait", wait, "How long to wait for the coordinator (0 waits forever)")
}

// runSession runs the client loop next to body. body starts once the session
// is Ready; returning from it tears the session down.
func runSession(cmd *cobra.Command, app *app, opts sessionOptions, body func(context.Context, *application.Client) error) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	account, creds, err := app.service.Credentials(ctx, sessionAccountID(app, opts.accountID))
	if err != nil {
		return err
	}

	failures := make(chan error, 1)
	hooks := opts.hooks
	onError := hooks.OnError
	hooks.OnError = func(err error) {
		if onError != nil {
			onError(err)
		}
		if !opts.failFast {
			return
		}
		select {
		case failures <- err:
		default:
		}
	}

	client := app.newClient(account, creds, sessionIO{in: cmd.InOrStdin(), out: cmd.ErrOrStderr()}, hooks)

	if opts.subscribe != nil {
		opts.subscribe(client)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()

		client.Connect()
		wait := func(ctx context.Context) error {
			return waitReady(ctx, client, opts.readyTimeout, failures)
		}

		var err error
		if opts.spinner {
			err = runReadySpinner(gctx, cmd.ErrOrStderr(), wait)
		} else {
			err = wait(gctx)
		}
		if err != nil {
			return err
		}

		if err := app.service.RecordSession(gctx, account.ID); err != nil {
			log := app.logger()
			log.Warn().Err(err).Str("account", string(account.ID)).Msg("could not record session time")
		}

		return body(gctx, client)
	})

	return g.Wait()
}

func waitReady(ctx context.Context, client *application.Client, timeout time.Duration, failures <-chan error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ready := make(chan error, 1)
	go func() {
		ready <- client.WaitReady(ctx)
	}()

	select {
	case err := <-ready:
		if err != nil && timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s (state %s)", domain.ErrNotReady, timeout, client.State())
		}
		return err
	case err := <-failures:
		return err
	}
}
