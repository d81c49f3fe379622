// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the local /health endpoint returns HTTP 200, and
// 1 otherwise. The port comes from RECIPE_PORT (default 3002). Compile with
// CGO_ENABLED=0 for a fully static binary.
package main

import (
	"net/http"
	"os"
	"time"
)

func main() {
	port := os.Getenv("RECIPE_PORT")
	if port == "" {
		port = "3002"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost:" + port + "/health")
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
