package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"ecorelease/config"
	"ecorelease/indexer"
	"ecorelease/rpc"
)

func runInvoke(kind string, args []string, client *rpcClient, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(kind, flag.ContinueOnError)
	fs.SetOutput(stderr)
	height := fs.Int64("height", -1, "height the invocation runs at")
	token := fs.String("token", "", "bearer token (defaults to "+rpcTokenEnv+")")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: message file or inline JSON required")
		return 1
	}
	if *height < 0 {
		fmt.Fprintln(stderr, "Error: --height is required")
		return 1
	}
	if *token != "" {
		client.token = *token
	}
	if client.token == "" {
		fmt.Fprintf(stderr, "Error: no bearer token; set %s or pass --token\n", rpcTokenEnv)
		return 1
	}
	msg, err := loadMessage(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	method := rpc.MethodExecute
	if kind == "instantiate" {
		method = rpc.MethodInstantiate
	}
	result, err := client.call(method, map[string]interface{}{"height": *height, "msg": msg})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", describeError(err))
		return 1
	}
	return printJSON(stdout, stderr, result)
}

func runQuery(args []string, client *rpcClient, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Error: message file or inline JSON required")
		return 1
	}
	msg, err := loadMessage(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	result, err := client.call(rpc.MethodQuery, map[string]interface{}{"msg": msg})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", describeError(err))
		return 1
	}
	return printJSON(stdout, stderr, result)
}

func runHeight(client *rpcClient, stdout, stderr io.Writer) int {
	result, err := client.call(rpc.MethodHeight)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", describeError(err))
		return 1
	}
	var out rpc.HeightResult
	if err := json.Unmarshal(result, &out); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, out.Height)
	return 0
}

// runExportEvents reads the event index named by the node configuration
// directly, so it works while the node is stopped.
func runExportEvents(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export-events", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfig, "node configuration file")
	out := fs.String("out", "", "parquet output path")
	action := fs.String("action", "", "only export events with this action")
	limit := fs.Int("limit", 1000, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*out) == "" {
		fmt.Fprintln(stderr, "Error: --out is required")
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if cfg.Indexer.Driver == "" {
		fmt.Fprintln(stderr, "Error: event indexer is disabled in the configuration")
		return 1
	}
	db, err := indexer.Open(cfg.Indexer.Driver, cfg.IndexerDSN())
	if err != nil {
		fmt.Fprintf(stderr, "Error opening index: %v\n", err)
		return 1
	}
	idx, err := indexer.New(db, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer idx.Close()

	n, err := idx.Export(context.Background(), *out, indexer.Filter{Action: *action, Limit: *limit})
	if err != nil {
		fmt.Fprintf(stderr, "Error exporting events: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Exported %d events to %s\n", n, *out)
	return 0
}

// loadMessage accepts an inline JSON object or a path to a JSON or YAML
// file and returns the message as JSON.
func loadMessage(arg string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(arg)
	if strings.HasPrefix(trimmed, "{") {
		if !json.Valid([]byte(trimmed)) {
			return nil, fmt.Errorf("inline message is not valid JSON")
		}
		return json.RawMessage(trimmed), nil
	}
	data, err := os.ReadFile(trimmed)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(trimmed)) {
	case ".yaml", ".yml":
		var doc map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", trimmed, err)
		}
		if doc == nil {
			return nil, fmt.Errorf("%s is empty", trimmed)
		}
		return json.Marshal(doc)
	default:
		data = bytes.TrimSpace(data)
		if !json.Valid(data) {
			return nil, fmt.Errorf("%s is not valid JSON", trimmed)
		}
		return json.RawMessage(data), nil
	}
}

func printJSON(stdout, stderr io.Writer, raw json.RawMessage) int {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, buf.String())
	return 0
}
