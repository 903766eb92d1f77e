package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	rpcEndpointEnv   = "RPC_URL"
	rpcTokenEnv      = "ECO_RPC_TOKEN"
	keystorePassEnv  = "ECO_KEYSTORE_PASSPHRASE"
	defaultEndpoint  = "http://localhost:8545"
	defaultConfig    = "./config.toml"
	defaultTokenTTL  = "1h"
	defaultKeyPrefix = "eco"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	endpoint := defaultRPCEndpoint()
	args, err := applyGlobalFlags(args, &endpoint)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	client := newRPCClient(endpoint, strings.TrimSpace(os.Getenv(rpcTokenEnv)))
	switch args[0] {
	case "generate-key":
		return runGenerateKey(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "instantiate":
		return runInvoke("instantiate", args[1:], client, stdout, stderr)
	case "execute":
		return runInvoke("execute", args[1:], client, stdout, stderr)
	case "query":
		return runQuery(args[1:], client, stdout, stderr)
	case "height":
		return runHeight(client, stdout, stderr)
	case "export-events":
		return runExportEvents(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(rpcEndpointEnv)); v != "" {
		return v
	}
	return defaultEndpoint
}

func applyGlobalFlags(args []string, endpoint *string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			*endpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			*endpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: eco-cli [--rpc URL] <command> [arguments]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  generate-key <keystore>                 - Creates a signing key in an encrypted keystore")
	fmt.Fprintln(w, "  address <keystore>                      - Prints the address of a keystore")
	fmt.Fprintln(w, "  token --subject ADDR | --keystore PATH  - Mints an RPC bearer token (needs ECO_RPC_HMAC_SECRET)")
	fmt.Fprintln(w, "  instantiate --height N <msg>            - Creates the contract from a JSON or YAML message")
	fmt.Fprintln(w, "  execute --height N <msg>                - Runs a handle message")
	fmt.Fprintln(w, "  query <msg>                             - Runs a query message")
	fmt.Fprintln(w, "  height                                  - Prints the last committed height")
	fmt.Fprintln(w, "  export-events --out FILE                - Exports indexed events to parquet")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "<msg> is a path to a .json/.yaml file or an inline JSON object.")
	fmt.Fprintln(w, "Mutating commands read the bearer token from "+rpcTokenEnv+" or --token.")
}
