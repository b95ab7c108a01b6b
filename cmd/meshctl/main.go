// Command meshctl is an interactive shell for poking at an in-process
// simulated mesh: add nodes, wire links, trigger discovery, and inspect
// route/neighbour state. There is no real node to dial into (send_ctl and
// recv_ctl are an external collaborator spec.md places out of scope), so
// every command operates against a meshsim.Bus built at startup.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"meshroute/internal/config"
	"meshroute/internal/domain"
	"meshroute/internal/logger"
	zapfactory "meshroute/internal/logger/zap"
	"meshroute/internal/meshsim"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout for discover commands")
	verbose := flag.Bool("verbose", false, "enable debug logging on the simulated bus")
	flag.Parse()

	var lgr logger.Logger = &logger.NopLogger{}
	if *verbose {
		zapLog, err := zapfactory.New(loggerConfig())
		if err == nil {
			lgr = zapfactory.NewAdapter(zapLog)
			defer func() { _ = zapLog.Sync() }()
		}
	}

	bus := meshsim.NewBus(0, lgr.Named("bus"))

	fmt.Println("meshroute interactive shell. No nodes registered yet.")
	fmt.Println("Available commands: addnode/link/unlink/discover/route/hello/debug/nodes/exit")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("meshctl> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("Aborted")
				continue
			}
			break
		}
		line.AppendHistory(input)

		args := strings.Fields(strings.TrimSpace(input))
		if len(args) == 0 {
			continue
		}
		cmd := args[0]
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)

		switch cmd {

		case "addnode":
			if len(args) < 2 {
				fmt.Println("Usage: addnode <addr> [elemCount]")
				break
			}
			addr, err := parseAddr(args[1])
			if err != nil {
				fmt.Printf("bad address: %v\n", err)
				break
			}
			elems := uint16(1)
			if len(args) >= 3 {
				n, err := strconv.Atoi(args[2])
				if err != nil {
					fmt.Printf("bad elemCount: %v\n", err)
					break
				}
				elems = uint16(n)
			}
			bus.AddNode(addr, elems)
			fmt.Printf("node %s added (elemCount=%d)\n", addr, elems)

		case "link":
			if len(args) < 4 {
				fmt.Println("Usage: link <addr> <addr> <rssi>")
				break
			}
			a, errA := parseAddr(args[1])
			c, errC := parseAddr(args[2])
			rssi, errR := strconv.Atoi(args[3])
			if errA != nil || errC != nil || errR != nil {
				fmt.Println("usage: link <addr> <addr> <rssi>")
				break
			}
			bus.Link(a, c, int8(rssi))
			fmt.Printf("linked %s <-> %s (rssi=%d)\n", a, c, rssi)

		case "unlink":
			if len(args) < 3 {
				fmt.Println("Usage: unlink <addr> <addr>")
				break
			}
			a, errA := parseAddr(args[1])
			c, errC := parseAddr(args[2])
			if errA != nil || errC != nil {
				fmt.Println("usage: unlink <addr> <addr>")
				break
			}
			bus.Unlink(a, c)
			fmt.Printf("unlinked %s <-> %s\n", a, c)

		case "discover":
			if len(args) < 3 {
				fmt.Println("Usage: discover <src> <dst>")
				break
			}
			src, errS := nodeAt(bus, args[1])
			dst, errD := parseAddr(args[2])
			if errS != nil {
				fmt.Printf("unknown source node: %v\n", errS)
				break
			}
			if errD != nil {
				fmt.Printf("bad destination: %v\n", errD)
				break
			}
			start := time.Now()
			err := src.Engine().RouteSendRequest(ctx, dst, 0)
			elapsed := time.Since(start)
			if err != nil {
				fmt.Printf("discover failed (%v) | elapsed=%s\n", err, elapsed)
			} else {
				fmt.Printf("discover succeeded | elapsed=%s\n", elapsed)
			}

		case "route":
			if len(args) < 3 {
				fmt.Println("Usage: route <src> <dst>")
				break
			}
			src, errS := nodeAt(bus, args[1])
			dst, errD := parseAddr(args[2])
			if errS != nil || errD != nil {
				fmt.Println("usage: route <src> <dst>")
				break
			}
			if hops, ok := src.Engine().RouteHopCount(dst, 0); ok {
				fmt.Printf("valid route, hop_count=%d\n", hops)
			} else {
				fmt.Println("no valid route")
			}

		case "hello":
			if len(args) < 3 {
				fmt.Println("Usage: hello <hearer> <heard>")
				break
			}
			hearer, errH := nodeAt(bus, args[1])
			heard, errD := parseAddr(args[2])
			if errH != nil || errD != nil {
				fmt.Println("usage: hello <hearer> <heard>")
				break
			}
			if err := hearer.Engine().OnHello(heard, 0); err != nil {
				fmt.Printf("OnHello failed: %v\n", err)
			} else {
				fmt.Printf("%s delivered a Hello from %s (refreshes it only if a route already uses it as a next hop)\n", hearer.Addr(), heard)
			}

		case "debug":
			if len(args) < 2 {
				fmt.Println("Usage: debug <addr>")
				break
			}
			n, err := nodeAt(bus, args[1])
			if err != nil {
				fmt.Printf("unknown node: %v\n", err)
				break
			}
			n.Engine().DebugLog()
			fmt.Println("(debug snapshot logged)")

		case "nodes":
			for _, a := range bus.Addrs() {
				fmt.Println(" -", a)
			}

		case "exit", "quit":
			fmt.Println("Bye!")
			cancel()
			return

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}

		cancel()
	}
}

func nodeAt(bus *meshsim.Bus, s string) (*meshsim.Node, error) {
	addr, err := parseAddr(s)
	if err != nil {
		return nil, err
	}
	n, ok := bus.Node(addr)
	if !ok {
		return nil, fmt.Errorf("no such node %s", addr)
	}
	return n, nil
}

func loggerConfig() config.LoggerConfig {
	return config.LoggerConfig{Active: true, Level: "debug", Encoding: "console", Mode: "development"}
}

func parseAddr(s string) (domain.Addr, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
	if err != nil {
		return 0, err
	}
	return domain.Addr(v), nil
}
