package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ecorelease/cmd/internal/passphrase"
	"ecorelease/config"
	"ecorelease/crypto"
	"ecorelease/rpc"
)

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("generate-key", flag.ContinueOnError)
	fs.SetOutput(stderr)
	prefix := fs.String("prefix", defaultKeyPrefix, "bech32 prefix for the printed address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: keystore path required")
		return 1
	}
	path := fs.Arg(0)
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists\n", path)
		return 1
	}

	pass, err := passphrase.NewConfirmedSource(keystorePassEnv).Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error generating key: %v\n", err)
		return 1
	}
	addr, err := key.PubKey().Address(*prefix).Encode()
	if err != nil {
		fmt.Fprintf(stderr, "Error encoding address: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(path, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error writing keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Keystore: %s\nAddress:  %s\n", path, addr)
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	prefix := fs.String("prefix", defaultKeyPrefix, "bech32 prefix")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: keystore path required")
		return 1
	}
	addr, err := keystoreAddress(fs.Arg(0), *prefix)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, addr)
	return 0
}

func keystoreAddress(path, prefix string) (string, error) {
	pass, err := passphrase.NewSource(keystorePassEnv).Get()
	if err != nil {
		return "", err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return "", fmt.Errorf("load keystore: %w", err)
	}
	return key.PubKey().Address(prefix).Encode()
}

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "signer address carried as the token subject")
	keystorePath := fs.String("keystore", "", "derive the subject from a keystore")
	prefix := fs.String("prefix", defaultKeyPrefix, "bech32 prefix used with --keystore")
	issuer := fs.String("issuer", "ecorelease", "token issuer")
	audience := fs.String("audience", "ecod", "token audience")
	ttlRaw := fs.String("ttl", defaultTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	ttl, err := time.ParseDuration(*ttlRaw)
	if err != nil || ttl <= 0 {
		fmt.Fprintf(stderr, "Error: invalid --ttl %q\n", *ttlRaw)
		return 1
	}

	sub := strings.TrimSpace(*subject)
	if sub == "" && *keystorePath != "" {
		sub, err = keystoreAddress(*keystorePath, *prefix)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	if sub == "" {
		fmt.Fprintln(stderr, "Error: --subject or --keystore is required")
		return 1
	}

	token, err := rpc.IssueToken(rpc.AuthConfig{
		HMACSecret: os.Getenv(config.EnvHMACSecret),
		Issuer:     *issuer,
		Audience:   *audience,
	}, sub, ttl)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v (set %s)\n", err, config.EnvHMACSecret)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
