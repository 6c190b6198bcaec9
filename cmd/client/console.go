package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dkeye/voicelink/internal/client"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/rs/zerolog/log"
)

var errQuit = errors.New("quit")

type commandKind int

const (
	cmdText commandKind = iota
	cmdJoin
	cmdLeave
	cmdMute
	cmdUnmute
	cmdQuit
)

type command struct {
	kind commandKind
	arg  string
}

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdText, arg: line}, nil
	}
	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "join":
		if arg == "" {
			return command{}, fmt.Errorf("usage: /join <channel>")
		}
		return command{kind: cmdJoin, arg: arg}, nil
	case "leave":
		return command{kind: cmdLeave}, nil
	case "mute":
		return command{kind: cmdMute}, nil
	case "unmute":
		return command{kind: cmdUnmute}, nil
	case "quit", "exit":
		return command{kind: cmdQuit}, nil
	}
	return command{}, fmt.Errorf("unknown command /%s", name)
}

// readConsole feeds stdin lines to c until EOF, /quit or ctx ends.
func readConsole(ctx context.Context, r io.Reader, c *client.Client) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		cmd, err := parseCommand(line)
		if err != nil {
			log.Warn().Err(err).Str("module", "cmd.client").Msg("console")
			continue
		}
		err = execute(ctx, c, cmd)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			log.Warn().Err(err).Str("module", "cmd.client").Msg("command failed")
		}
	}
	return sc.Err()
}

func execute(ctx context.Context, c *client.Client, cmd command) error {
	switch cmd.kind {
	case cmdJoin:
		name, err := domain.NewChannelName(cmd.arg)
		if err != nil {
			return err
		}
		return c.JoinChannel(ctx, name)
	case cmdLeave:
		return c.LeaveChannel(ctx)
	case cmdMute:
		c.SetMuted(true)
	case cmdUnmute:
		c.SetMuted(false)
	case cmdQuit:
		return errQuit
	default:
		return c.SendText(ctx, cmd.arg)
	}
	return nil
}
