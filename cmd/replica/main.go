// Command replica is the process launcher for a single cluster member
// (spec.md §6's external CLI surface: "positional port id others...").
// It is an external collaborator per spec.md §1 scope, but is included
// here as a runnable reference so the engine can be exercised end to end.
// Since spec.md addresses peers by four-character id rather than network
// address, each of the trailing "others" is given as "id@port" so this
// reference launcher can build a UDP address book; a real deployment's
// process launcher would supply this mapping out of band.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ReshiAdavan/raftkv/raft"
	"github.com/ReshiAdavan/raftkv/transport"
)

func main() {
	cmd := &cobra.Command{
		Use:   "replica <port> <id> <peer-id@peer-port...>",
		Short: "run one replica of the cluster",
		Args:  cobra.MinimumNArgs(2),
		RunE:  run,
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", args[0], err)
	}
	id := args[1]

	peers := make([]string, 0, len(args)-2)
	peerPorts := make(map[string]int, len(args)-2)
	for _, spec := range args[2:] {
		peerID, peerPortStr, found := strings.Cut(spec, "@")
		if !found {
			return fmt.Errorf("invalid peer %q: want id@port", spec)
		}
		peerPort, err := strconv.Atoi(peerPortStr)
		if err != nil {
			return fmt.Errorf("invalid peer port in %q: %w", spec, err)
		}
		peers = append(peers, peerID)
		peerPorts[peerID] = peerPort
	}

	zlog, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer zlog.Sync() //nolint:errcheck
	log := zlog.Sugar().With("replica", id)

	tp, err := transport.NewUDP(port, id, log)
	if err != nil {
		return err
	}
	defer tp.Close()
	for peerID, peerPort := range peerPorts {
		tp.Register(peerID, peerPort)
	}

	r := raft.New(id, peers, tp, log)
	r.Run()
	return nil
}
