package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sanddb/sanddb/internal/config"
	"github.com/sanddb/sanddb/internal/engine"
	"github.com/sanddb/sanddb/internal/sanderrors"
)

// CLI is an interactive REPL over one Engine. Grounded on the teacher's
// cmd/cli/main.go (bufio.Scanner loop, command dispatch by first word),
// trimmed to the handful of verbs a key/value store needs.
type CLI struct {
	engine  *engine.Engine
	scanner *bufio.Scanner
}

func main() {
	dataDir := flag.String("data", "./data/sanddb", "data directory")
	configPath := flag.String("config", "", "optional YAML config overlay")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	flag.Parse()

	opts := config.Default(*dataDir)
	if *configPath != "" {
		loaded, err := config.LoadOverlay(*configPath, opts)
		if err != nil {
			fmt.Printf("failed to load config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
		opts = loaded
	}

	fmt.Printf("opening database at %s...\n", opts.DataDir)
	e, err := engine.Open(opts)
	if err != nil {
		fmt.Printf("failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer e.Close()
	fmt.Println("database ready")

	if *metricsAddr != "" {
		if err := e.Metrics().Register(prometheus.DefaultRegisterer); err != nil {
			fmt.Printf("failed to register metrics: %v\n", err)
			os.Exit(1)
		}
		serveMetrics(*metricsAddr)
	}

	cli := &CLI{engine: e, scanner: bufio.NewScanner(os.Stdin)}
	fmt.Println("type 'help' for available commands, 'exit' to quit")
	cli.run()
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
	go http.ListenAndServe(addr, mux)
	fmt.Printf("serving metrics on %s/metrics\n", addr)
}

func (cli *CLI) run() {
	for {
		fmt.Print("sanddb> ")
		if !cli.scanner.Scan() {
			break
		}
		input := strings.TrimSpace(cli.scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("bye")
			break
		}
		cli.execute(input)
	}
}

func (cli *CLI) execute(input string) {
	parts := strings.Fields(input)
	command := strings.ToLower(parts[0])

	switch command {
	case "help":
		cli.showHelp()

	case "set", "put":
		if len(parts) < 3 {
			fmt.Println("usage: set <key> <value>")
			return
		}
		key := parts[1]
		value := strings.Join(parts[2:], " ")
		if err := cli.engine.Put([]byte(key), []byte(value)); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("ok")

	case "get":
		if len(parts) != 2 {
			fmt.Println("usage: get <key>")
			return
		}
		value, err := cli.engine.Get([]byte(parts[1]))
		if err == sanderrors.ErrNotFound {
			fmt.Println("(not found)")
			return
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println(string(value))

	case "del", "delete":
		if len(parts) != 2 {
			fmt.Println("usage: del <key>")
			return
		}
		if err := cli.engine.Delete([]byte(parts[1])); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("ok")

	default:
		fmt.Printf("unknown command: %s (type 'help' for available commands)\n", command)
	}
}

func (cli *CLI) showHelp() {
	fmt.Println(`available commands:
  set <key> <value>   write a key
  get <key>           read a key
  del <key>           delete a key
  help                show this help
  exit                quit`)
}
