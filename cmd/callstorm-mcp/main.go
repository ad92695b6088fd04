// callstorm-mcp exposes a running callstorm-d over the Model Context
// Protocol on stdio.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/callstorm/callstorm/pkg/mcp"
)

func main() {
	apiURL := flag.String("api", "http://127.0.0.1:8090", "Base URL of callstorm-d API")
	flag.Parse()

	if env := os.Getenv("CALLSTORM_ENDPOINT"); env != "" && *apiURL == "http://127.0.0.1:8090" {
		*apiURL = env
	}

	s := mcp.NewServer(*apiURL)
	if err := s.Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "callstorm-mcp: %v\n", err)
		os.Exit(1)
	}
}
