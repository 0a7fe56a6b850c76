package handler

import (
	"context"
	"fmt"

	"github.com/cuemby/itemstored/internal/wire"
)

func init() {
	registerHandler(wire.DiscHello, handleHello)
	registerHandler(wire.DiscLogin, handleLogin)
	registerHandler(wire.DiscLogout, handleLogout)
}

func handleHello(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	hello, ok := cmd.(*wire.HelloCommand)
	if !ok {
		return nil, fmt.Errorf("handler: hello: unexpected command type %T", cmd)
	}
	if hello.ProtocolVersion <= 0 {
		return nil, fmt.Errorf("handler: hello: invalid protocol version %d", hello.ProtocolVersion)
	}
	return &wire.TerminalResponse{OK: true}, nil
}

// handleLogin stamps the session id onto Env; internal/server promotes
// the connection to Authenticated only after this returns without error.
func handleLogin(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	login, ok := cmd.(*wire.LoginCommand)
	if !ok {
		return nil, fmt.Errorf("handler: login: unexpected command type %T", cmd)
	}
	if login.SessionID == "" {
		return nil, fmt.Errorf("handler: login: empty session id")
	}
	env.SessionID = login.SessionID
	return &wire.TerminalResponse{OK: true}, nil
}

// handleLogout always succeeds; internal/server transitions the
// connection to LoggingOut and closes it after the response is written,
// draining any in-flight write first.
func handleLogout(ctx context.Context, env *Env, resp Responder, cmd wire.Command) (wire.Command, error) {
	return &wire.TerminalResponse{OK: true}, nil
}
