// Command client is a minimal reference client simulator (spec.md §1:
// "the client simulator that issues get/put and observes
// ok/fail/redirect" is an external collaborator; this is a runnable
// stand-in for exercising a cluster by hand).
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ReshiAdavan/raftkv/raft"
)

// clerk is the generalization of the teacher's kvraft.Clerk
// (kvraft/client.go) to the spec's UDP/JSON wire protocol: it round-robins
// across the known replica addresses on redirect, exactly as the teacher's
// Clerk round-robins across ck.servers on WrongLeader.
type clerk struct {
	conn    *net.UDPConn
	addrs   []*net.UDPAddr
	current int
}

func newClerk(ports []int) (*clerk, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		return nil, err
	}
	addrs := make([]*net.UDPAddr, len(ports))
	for i, p := range ports {
		addrs[i] = &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: p}
	}
	return &clerk{conn: conn, addrs: addrs}, nil
}

func (c *clerk) request(m raft.Message) (raft.Message, error) {
	buf := make([]byte, transportMaxFrame)
	for attempt := 0; attempt < len(c.addrs)*3; attempt++ {
		body, err := raft.Encode(m)
		if err != nil {
			return raft.Message{}, err
		}
		addr := c.addrs[c.current]
		if _, err := c.conn.WriteToUDP(body, addr); err != nil {
			return raft.Message{}, err
		}
		c.conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			c.current = (c.current + 1) % len(c.addrs)
			continue
		}
		reply, err := raft.Decode(buf[:n])
		if err != nil {
			continue
		}
		switch reply.Type {
		case raft.MsgOk:
			return reply, nil
		case raft.MsgRedirect, raft.MsgFail:
			c.current = (c.current + 1) % len(c.addrs)
		}
	}
	return raft.Message{}, fmt.Errorf("no replica answered %s", m.Type)
}

const transportMaxFrame = 65535

func (c *clerk) Get(key string) (string, error) {
	reply, err := c.request(raft.Message{Type: raft.MsgGet, MID: uuid.NewString(), Key: key})
	if err != nil {
		return "", err
	}
	return reply.AsString(), nil
}

func (c *clerk) Put(key, value string) error {
	_, err := c.request(raft.Message{Type: raft.MsgPut, MID: uuid.NewString(), Key: key, RawValue: raft.StringValue(value)})
	return err
}

func main() {
	cmd := &cobra.Command{
		Use:   "client <ports...>",
		Short: "issue get/put requests against a running cluster",
		Args:  cobra.MinimumNArgs(1),
		RunE:  run,
	}
	cmd.Flags().String("get", "", "key to fetch")
	cmd.Flags().StringSlice("put", nil, "key value pair to store")
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ports := make([]int, len(args))
	for i, a := range args {
		p, err := strconv.Atoi(a)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", a, err)
		}
		ports[i] = p
	}
	ck, err := newClerk(ports)
	if err != nil {
		return err
	}

	if key, _ := cmd.Flags().GetString("get"); key != "" {
		value, err := ck.Get(key)
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	}
	if kv, _ := cmd.Flags().GetStringSlice("put"); len(kv) == 2 {
		if err := ck.Put(kv[0], kv[1]); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	}
	return fmt.Errorf("specify --get <key> or --put <key>,<value>")
}
