package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Expects a server started over testdata/clusters.json
// (unisonctl load testdata/clusters.json).
func main() {
	baseURL := os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting Integration Test...")

	fmt.Println("1. Health check...")
	if _, ok := sendRequest(baseURL, "/healthz"); !ok {
		fail("Health check")
	}
	fmt.Println("PASSED: Health check")

	fmt.Println("2. Resolving peer cluster...")
	var entity struct {
		Entity struct {
			GUID string `json:"guid"`
		} `json:"entity"`
	}
	if !decode(baseURL, "/entities/a", &entity) || entity.Entity.GUID != "c" {
		fail("Resolve entity")
	}
	fmt.Println("PASSED: Resolve entity")

	fmt.Println("3. Resolving relationships...")
	var rels struct {
		Relationships []struct {
			GUID string `json:"guid"`
		} `json:"relationships"`
	}
	if !decode(baseURL, "/entities/a/relationships?type=OwnsOneThing", &rels) || len(rels.Relationships) != 1 {
		fail("Resolve relationships")
	}
	fmt.Println("PASSED: Resolve relationships")

	fmt.Println("4. Resolving related entities...")
	var related struct {
		Entities []struct {
			GUID string `json:"guid"`
		} `json:"entities"`
	}
	if !decode(baseURL, "/entities/b/related?type=OwnsOneThing", &related) || len(related.Entities) != 1 {
		fail("Resolve related entities")
	}
	fmt.Println("PASSED: Resolve related entities")
}

func fail(step string) {
	fmt.Printf("FAILED: %s\n", step)
	os.Exit(1)
}

func decode(baseURL, endpoint string, v interface{}) bool {
	body, ok := sendRequest(baseURL, endpoint)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		fmt.Printf("Error decoding response: %v\n", err)
		return false
	}
	return true
}

func sendRequest(baseURL, endpoint string) ([]byte, bool) {
	resp, err := http.Get(baseURL + endpoint)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return nil, false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return nil, false
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return respBody, true
}
