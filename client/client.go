package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alejzeis/strangerchat/common"

	log "github.com/sirupsen/logrus"
)

var errNotConnected = errors.New("not connected, use \"connect [URL]\" first")

const helpText = `Commands:
  connect [URL]     connect to a server
  disconnect        leave the server
  start             look for a stranger
  stop              stop looking
  skip              leave the current stranger and look for another
  end               leave the current stranger
  say [text]        send a message to the stranger
  report [reason]   report the stranger and end the chat
  info              show the server and your session
  stats             show server statistics
  ice               show the ICE servers browsers are told to use
  quit              exit`

// console holds the REPL's connection, if any
type console struct {
	display  display
	provider common.MessageConnectionProvider

	rest    *restClient
	session *chatSession
}

func newConsole(display display, provider common.MessageConnectionProvider) *console {
	return &console{
		display:  display,
		provider: provider,
	}
}

// RunClient is the main method for running the client code. It reads commands from input until
// quit, end of input or ctx is cancelled. If serverURL is set the client connects to it first.
func RunClient(ctx context.Context, input io.Reader, serverURL string) error {
	c := newConsole(ptermDisplay{}, &common.WebsocketConnectionProvider{})
	defer c.disconnect()

	if serverURL != "" {
		if err := c.connect(serverURL); err != nil {
			return err
		}
	}

	log.Info("Client ready for commands.")
	c.display.Info("Type help for a list of commands")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")

		select {
		case <-ctx.Done():
			return nil
		case text, ok := <-lines:
			if !ok {
				return nil
			}
			if !c.execute(text) {
				return nil
			}
		}
	}
}

// execute runs one line of input. It returns false once the user asks to quit.
func (c *console) execute(text string) bool {
	command, args, _ := strings.Cut(strings.TrimSpace(text), " ")
	args = strings.TrimSpace(args)

	var err error
	switch strings.ToLower(command) {
	case "":
		return true
	case "quit", "exit":
		return false
	case "help":
		c.display.Info(helpText)
	case "connect":
		if args == "" {
			c.display.Error("Usage: \"connect [URL]\"")
			return true
		}
		err = c.connect(args)
	case "disconnect":
		if c.session == nil {
			err = errNotConnected
		} else {
			c.disconnect()
			c.display.Info("Disconnected")
		}
	case "start":
		err = c.withSession((*chatSession).startSearching)
	case "stop":
		err = c.withSession((*chatSession).stopSearching)
	case "skip":
		err = c.withSession((*chatSession).skip)
	case "end":
		err = c.withSession((*chatSession).endChat)
	case "say":
		err = c.withSession(func(s *chatSession) error { return s.say(args) })
	case "report":
		err = c.withSession(func(s *chatSession) error { return s.report(args) })
	case "info":
		err = c.showInfo()
	case "stats":
		err = c.showStats()
	case "ice":
		err = c.showICEServers()
	default:
		c.display.Error(fmt.Sprintf("Unknown command %q, type help for a list of commands", command))
	}

	if err != nil {
		c.display.Error(err.Error())
	}
	return true
}

func (c *console) connect(serverURL string) error {
	if c.session != nil {
		return errors.New("already connected, disconnect first")
	}

	restBase, wsURL, err := serverAddresses(serverURL)
	if err != nil {
		return err
	}

	rest := createRestClient(restBase)
	info, err := rest.fetchInfo()
	if err != nil {
		return fmt.Errorf("failed to contact server: %w", err)
	}

	conn, err := c.provider.DialForConnection(wsURL)
	if err != nil {
		log.WithField("address", wsURL).WithError(err).Debug("Failed to dial websocket")
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}

	c.rest = rest
	c.session = newChatSession(conn, c.display)
	go c.session.run()

	log.WithFields(log.Fields{
		"server":  restBase,
		"version": info.Version,
	}).Debug("Connected")
	c.display.Success(fmt.Sprintf("Connected to %s %s at %s. Type start to meet a stranger", info.Software, info.Version, restBase))
	return nil
}

func (c *console) disconnect() {
	if c.session == nil {
		return
	}
	c.session.close()
	c.session = nil
	c.rest = nil
}

// withSession runs fn against the live session, forgetting the session if the server has gone away
func (c *console) withSession(fn func(*chatSession) error) error {
	if c.session == nil {
		return errNotConnected
	}

	err := fn(c.session)
	if errors.Is(err, errSessionDone) {
		c.session = nil
		c.rest = nil
	}
	return err
}

func (c *console) showInfo() error {
	if c.session == nil {
		return errNotConnected
	}

	info := c.rest.serverInfo
	c.display.Table([][]string{
		{"Server", "Version", "API", "Your id", "State"},
		{c.rest.serverURL, info.Version, fmt.Sprint(info.API), c.session.id(), c.session.currentState().String()},
	})
	return nil
}

func (c *console) showStats() error {
	if c.rest == nil {
		return errNotConnected
	}

	stats, err := c.rest.fetchStats()
	if err != nil {
		return err
	}
	c.display.Table(statsTable(stats))
	return nil
}

func (c *console) showICEServers() error {
	if c.rest == nil {
		return errNotConnected
	}

	servers, err := c.rest.fetchICEServers()
	if err != nil {
		return err
	}
	c.display.Table(iceServersTable(servers))
	return nil
}
