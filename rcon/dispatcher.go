package rcon

import (
	"context"
)

// Dispatcher issues one administrative command per authenticated session.
// Sessions are not pooled: a whitelist approval happens rarely enough that
// dial-auth-run-close per command keeps the failure surface small.
type Dispatcher struct{}

func (Dispatcher) Dispatch(ctx context.Context, host string, port int, password, command string) (string, error) {
	client, err := Dial(host, port, password)
	if err != nil {
		return "", err
	}
	defer client.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := client.SetDeadline(deadline); err != nil {
			return "", err
		}
	}
	return client.Run(command)
}
