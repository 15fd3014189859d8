package api_test

import (
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

var baseURL = "http://localhost:8080"

func checkAPIServer() error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/api/v1/health/live")
	if err != nil {
		return fmt.Errorf("API server not reachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func TestMain(m *testing.M) {
	if url := os.Getenv("API_URL"); url != "" {
		baseURL = url
	}

	// These tests drive a running server; without one there is nothing
	// to test.
	if err := checkAPIServer(); err != nil {
		fmt.Printf("Skipping API tests: %v\n", err)
		os.Exit(0)
	}

	os.Exit(m.Run())
}
