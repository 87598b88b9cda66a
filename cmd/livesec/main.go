// Command livesec runs the terminal dashboard against a livesec-ingest
// instance.
package main

import (
	"flag"
	"fmt"
	"os"

	"livesec/internal/tui"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the livesec-ingest API")
	apiKey := flag.String("api-key", os.Getenv("LIVESEC_API_KEY"), "API key sent in the X-API-Key header")
	flag.Parse()

	if err := tui.Run(*baseURL, *apiKey); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard failed: %v\n", err)
		os.Exit(1)
	}
}
