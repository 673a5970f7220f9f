// signalclient is the companion command-line client: it connects to a
// signalserver, subscribes with a filter, and prints the snapshot and every
// subsequent update it receives until interrupted.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/signal-pubsub/server/internal/sigclient"
	sig "github.com/signal-pubsub/server/internal/signal"
)

const (
	defaultHost   = "127.0.0.1"
	defaultPort   = "5000"
	defaultFilter = "3"
)

type printingHandler struct{}

func (printingHandler) OnSignals(signals []sig.Signal, snapshot bool) {
	label := "update"
	if snapshot {
		label = "snapshot"
	}
	for _, s := range signals {
		fmt.Printf("%s: %s\n", label, s)
	}
}

func (printingHandler) OnStateChange(s sigclient.State) {
	log.Printf("sigclient: %s", s)
}

func main() {
	host, port, filterArg := defaultHost, defaultPort, defaultFilter
	args := os.Args[1:]
	if len(args) > 0 {
		host = args[0]
	}
	if len(args) > 1 {
		port = args[1]
	}
	if len(args) > 2 {
		filterArg = args[2]
	}

	filterInt, err := strconv.Atoi(filterArg)
	if err != nil || filterInt < 0 || filterInt > 255 {
		log.Fatalf("invalid filter %q: must be an integer bitmask 0-255", filterArg)
	}

	addr := net.JoinHostPort(host, port)
	c := sigclient.New(addr, sig.Type(filterInt), printingHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	c.Run(ctx)
}
