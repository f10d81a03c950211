// Command client is a thin CLI over the exchange's framed-TCP session
// protocol (spec §6): it performs the AUTH handshake, sends one raw
// command string, prints the decoded reply, and exits.
//
// Grounded on the teacher's cmd/client/main.go: one subcommand per
// server operation plus a `demo` walkthrough, built on flag.FlagSet.
// This ports that subcommand-per-operation shape from HTTP+FlagSet to
// framed-TCP+cobra (spf13/cobra, already pulled in for cmd/server),
// since the wire protocol here is a raw command string rather than a
// REST verb+path — each cobra subcommand just assembles that string
// and a generic `cmd` fallback accepts any command line verbatim.
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/protocol"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/transport"
)

type client struct {
	addr     string
	name     string
	email    string
	password string
	signup   bool
}

// dial connects, performs the AUTH handshake, and returns the framed
// connection ready for the session's command loop.
func (c *client) dial() (*transport.Conn, error) {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}
	fc := transport.NewConn(conn)

	mode := protocol.AuthLogin
	if c.signup {
		mode = protocol.AuthSignup
	}
	auth := protocol.NewAuthMessage(mode, c.name, c.email, c.password)
	payload, err := json.Marshal(auth)
	if err != nil {
		fc.Close()
		return nil, err
	}
	if err := fc.Send(payload); err != nil {
		fc.Close()
		return nil, fmt.Errorf("send AUTH: %w", err)
	}

	reply, err := fc.Receive()
	if err != nil {
		fc.Close()
		return nil, fmt.Errorf("receive AUTH reply: %w", err)
	}
	printReply(reply)

	return fc, nil
}

// runCommand dials, sends one command line, prints the reply, and
// closes the connection.
func (c *client) runCommand(line string) error {
	fc, err := c.dial()
	if err != nil {
		return err
	}
	defer fc.Close()

	if err := fc.Send([]byte(line)); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	reply, err := fc.Receive()
	if err != nil {
		return fmt.Errorf("receive reply: %w", err)
	}
	printReply(reply)
	return nil
}

// printReply pretty-prints whatever JSON message variant the server
// sent back (spec §6: STATUS/VALUE/TABLE/CHART/MULTI all discriminate
// on a `type` field, so a generic map round-trip is enough here).
func printReply(payload []byte) {
	var generic map[string]interface{}
	if err := json.Unmarshal(payload, &generic); err != nil {
		fmt.Printf("<undecodable reply: %v>\n", err)
		return
	}
	pretty, _ := json.MarshalIndent(generic, "", "  ")
	fmt.Println(string(pretty))
}

func main() {
	c := &client{}

	root := &cobra.Command{Use: "client", Short: "NSE exchange CLI client"}
	root.PersistentFlags().StringVar(&c.addr, "addr", "localhost:19055", "exchange address (host:port)")
	root.PersistentFlags().StringVar(&c.name, "user", "", "principal name")
	root.PersistentFlags().StringVar(&c.email, "email", "", "e-mail (signup only)")
	root.PersistentFlags().StringVar(&c.password, "password", "", "password")
	root.PersistentFlags().BoolVar(&c.signup, "signup", false, "register a new account instead of logging in")

	root.AddCommand(&cobra.Command{
		Use:   "cmd [command line]",
		Short: "send a raw command line and print the decoded reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCommand(strings.Join(args, " "))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "buy [ticker] [size] [price]",
		Short: "place a limit buy order",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCommand(fmt.Sprintf("buylimit %s %s %s", args[0], args[1], args[2]))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "sell [ticker] [size] [price]",
		Short: "place a limit sell order",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCommand(fmt.Sprintf("selllimit %s %s %s", args[0], args[1], args[2]))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "market",
		Short: "show the market table of every asset class",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCommand("market")
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "balance",
		Short: "show your settled/unsettled balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCommand("balance")
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "orders",
		Short: "list your open orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCommand("orders")
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "positions",
		Short: "list your asset positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCommand("positions")
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
