package main

import (
	"fmt"
	"os"
	"strings"

	"kitchen-display/cmd/kds"
	"kitchen-display/cmd/migrate"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var mode string
	var serviceArgs []string

	for i := 1; i < len(os.Args); i++ {
		arg := os.Args[i]
		if strings.HasPrefix(arg, "--mode=") {
			mode = strings.TrimPrefix(arg, "--mode=")
		} else if arg == "--mode" && i+1 < len(os.Args) {
			mode = os.Args[i+1]
			i++
		} else {
			serviceArgs = append(serviceArgs, arg)
		}
	}

	if mode == "" {
		printUsage()
		os.Exit(1)
	}

	os.Args = append([]string{os.Args[0]}, serviceArgs...)

	switch mode {
	case "kds":
		kds.Main()
	case "migrate":
		migrate.Main()
	default:
		fmt.Printf("Invalid mode: %s\n", mode)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: kitchen-display --mode=<mode> [mode-specific-flags]")
	fmt.Println("Available modes:")
	fmt.Println("  kds --config-path=config.yaml --port=3004 [--no-remote] [--pull-first=false]")
	fmt.Println("  migrate --config-path=config.yaml [--down | --steps=n]")
}
