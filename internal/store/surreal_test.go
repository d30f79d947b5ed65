// Package store integration tests run against a real SurrealDB container.
package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testStore *SurrealStore
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	if os.Getenv("FIELDWORK_SKIP_CONTAINER_TESTS") != "" {
		os.Exit(m.Run())
	}

	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testStore, err = NewSurrealStore(ctx, SurrealConfig{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	code := m.Run()

	_ = testStore.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func skipWithoutContainer(t *testing.T) {
	if testStore == nil {
		t.Skip("container tests disabled")
	}
}

func TestSurrealLearnStoresChunks(t *testing.T) {
	skipWithoutContainer(t)
	ctx := context.Background()

	content := strings.Repeat("A paragraph of page text worth keeping around. ", 60)
	res, err := testStore.Learn(ctx, "https://example.com/long", "Long page", content, false)
	if err != nil {
		t.Fatalf("Learn failed: %v", err)
	}
	if res.Skipped {
		t.Fatal("fresh URL must not be skipped")
	}
	if res.Chunks < 2 {
		t.Errorf("expected long content to chunk, got %d", res.Chunks)
	}

	chunks, err := testStore.ChunkContents(ctx, "https://example.com/long")
	if err != nil {
		t.Fatalf("ChunkContents failed: %v", err)
	}
	if len(chunks) != res.Chunks {
		t.Errorf("stored %d chunks, reported %d", len(chunks), res.Chunks)
	}
}

func TestSurrealLearnSkipsUnchanged(t *testing.T) {
	skipWithoutContainer(t)
	ctx := context.Background()

	url := "https://example.com/stable"
	if _, err := testStore.Learn(ctx, url, "Stable", "unchanging content", false); err != nil {
		t.Fatalf("Learn failed: %v", err)
	}

	res, err := testStore.Learn(ctx, url, "Stable", "unchanging content", false)
	if err != nil {
		t.Fatalf("second Learn failed: %v", err)
	}
	if !res.Skipped {
		t.Error("unchanged content should be skipped")
	}

	res, err = testStore.Learn(ctx, url, "Stable", "unchanging content", true)
	if err != nil {
		t.Fatalf("forced Learn failed: %v", err)
	}
	if res.Skipped {
		t.Error("forced learn must not be skipped")
	}
}

func TestSurrealRelearnReplacesChunks(t *testing.T) {
	skipWithoutContainer(t)
	ctx := context.Background()

	url := "https://example.com/changing"
	long := strings.Repeat("First version of the page with plenty of text. ", 60)
	if _, err := testStore.Learn(ctx, url, "V1", long, false); err != nil {
		t.Fatalf("Learn failed: %v", err)
	}

	res, err := testStore.Learn(ctx, url, "V2", "second, much shorter version", false)
	if err != nil {
		t.Fatalf("relearn failed: %v", err)
	}
	if res.Chunks != 1 {
		t.Errorf("expected 1 chunk after relearn, got %d", res.Chunks)
	}

	chunks, err := testStore.ChunkContents(ctx, url)
	if err != nil {
		t.Fatalf("ChunkContents failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Errorf("old chunks not replaced: %d remain", len(chunks))
	}
}
