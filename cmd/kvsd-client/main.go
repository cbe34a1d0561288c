package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/liushuochen/gotable"

	"github.com/allen1211/kvsd/internal/client"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	addr, rest := parseAddrFlag(os.Args[2:])
	cmd := os.Args[1]
	c := client.New(addr, 0)

	switch cmd {
	case "get":
		runGet(c, rest)
	case "set":
		runSet(c, rest)
	case "rm":
		runRemove(c, rest)
	case "stats":
		runStats(c, rest)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kvsd-client [get KEY|set KEY VALUE|rm KEY|stats] [--addr IP:PORT]")
}

// parseAddrFlag pulls --addr out of args wherever it appears, returning
// the resolved address and the remaining positional arguments.
func parseAddrFlag(args []string) (addr string, rest []string) {
	addr = "127.0.0.1:4000"
	for i := 0; i < len(args); i++ {
		if args[i] == "--addr" && i+1 < len(args) {
			addr = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	return addr, rest
}

func runGet(c *client.Client, args []string) {
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}
	value, found, err := c.Get(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !found {
		fmt.Println("Key not found")
		return
	}
	fmt.Println(value)
}

func runSet(c *client.Client, args []string) {
	if len(args) != 2 {
		usage()
		os.Exit(1)
	}
	if err := c.Set(args[0], args[1]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRemove(c *client.Client, args []string) {
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}
	if err := c.Remove(args[0]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runStats renders engine statistics with gotable, the supplemented
// subcommand that lets an operator inspect a running server without a
// separate admin tool.
func runStats(c *client.Client, args []string) {
	_ = args
	stats, err := c.Stats()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	t, err := gotable.Create("engine", "keys", "uncompacted bytes", "generations")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	_ = t.AddRow([]string{
		stats.Engine,
		strconv.FormatInt(stats.Keys, 10),
		strconv.FormatUint(stats.Uncompacted, 10),
		strconv.FormatInt(stats.Generations, 10),
	})
	fmt.Println(t)
}
