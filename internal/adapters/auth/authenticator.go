package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Authenticator answers the out-of-band checks a session may require.
type Authenticator interface {
	DeviceCode(ctx context.Context, previousIncorrect bool) (string, error)
	EmailCode(ctx context.Context, email string, previousIncorrect bool) (string, error)
	// AcceptDeviceConfirmation reports whether the user will approve the
	// login from the mobile app instead of typing a code.
	AcceptDeviceConfirmation(ctx context.Context) (bool, error)
}

var ErrEmptyCode = errors.New("guard code is empty")

type ConsoleAuthenticator struct {
	out io.Writer

	mu     sync.Mutex
	reader *bufio.Reader
}

func NewConsoleAuthenticator(in io.Reader, out io.Writer) *ConsoleAuthenticator {
	return &ConsoleAuthenticator{
		out:    out,
		reader: bufio.NewReader(in),
	}
}

func (c *ConsoleAuthenticator) DeviceCode(ctx context.Context, previousIncorrect bool) (string, error) {
	if previousIncorrect {
		_, _ = fmt.Fprintln(c.out, "The previous code was incorrect.")
	}
	return c.readCode(ctx, "Enter the code from your authenticator app: ")
}

func (c *ConsoleAuthenticator) EmailCode(ctx context.Context, email string, previousIncorrect bool) (string, error) {
	if previousIncorrect {
		_, _ = fmt.Fprintln(c.out, "The previous code was incorrect.")
	}
	prompt := "Enter the code sent to your email: "
	if email != "" {
		prompt = fmt.Sprintf("Enter the code sent to %s: ", email)
	}
	return c.readCode(ctx, prompt)
}

func (c *ConsoleAuthenticator) AcceptDeviceConfirmation(ctx context.Context) (bool, error) {
	answer, err := c.readLine(ctx, "Approve the login in the mobile app? [Y/n] ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "", "y", "yes":
		_, _ = fmt.Fprintln(c.out, "Waiting for approval...")
		return true, nil
	default:
		return false, nil
	}
}

func (c *ConsoleAuthenticator) readCode(ctx context.Context, prompt string) (string, error) {
	code, err := c.readLine(ctx, prompt)
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", ErrEmptyCode
	}
	return strings.ToUpper(code), nil
}

func (c *ConsoleAuthenticator) readLine(ctx context.Context, prompt string) (string, error) {
	type line struct {
		text string
		err  error
	}

	_, _ = fmt.Fprint(c.out, prompt)

	result := make(chan line, 1)
	go func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		input, err := c.reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && input != "") {
			result <- line{err: fmt.Errorf("read guard input: %w", err)}
			return
		}
		result <- line{text: strings.TrimSpace(input)}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l := <-result:
		return l.text, l.err
	}
}
