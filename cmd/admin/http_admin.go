package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"somnarium.ai/internal/apiclient"
)

func pingCmd(args []string) {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:3000", "server base url")
	_ = fs.Parse(args)

	cl := apiclient.New(*baseURL, apiclient.Options{Timeout: 5 * time.Second})
	ok, err := cl.Ping(context.Background())
	if err != nil || !ok {
		fmt.Println("Offline")
		if err != nil {
			fmt.Fprintln(os.Stderr, "request:", err)
		}
		os.Exit(1)
	}
	fmt.Println("Online")
}

// fetchCmd reads a concoction (or the recent list) through the public API,
// which is what the game clients see.
func fetchCmd(args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:3000", "server base url")
	limit := fs.Int("limit", 0, "list size when no code is given (0: server default)")
	_ = fs.Parse(args)

	cl := apiclient.New(*baseURL, apiclient.Options{Timeout: 10 * time.Second})
	ctx := context.Background()
	if fs.NArg() == 0 {
		list, err := cl.ListConcoctions(ctx, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "request:", err)
			os.Exit(1)
		}
		printJSON(list)
		return
	}
	c, err := cl.GetConcoction(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	printJSON(c)
}
