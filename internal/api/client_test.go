package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flowport/flowport/internal/workflow"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		BaseURL:              baseURL,
		APIKey:               "test-api-key-12345",
		MaxRetries:           3,
		Timeout:              2 * time.Second,
		MaxRequestsPerSecond: 1000,
		BackoffBase:          time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClientRequiresURLAndKey(t *testing.T) {
	if _, err := NewClient(ClientConfig{APIKey: "k"}); err == nil {
		t.Error("NewClient() without URL did not fail")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "http://x"}); err == nil {
		t.Error("NewClient() without API key did not fail")
	}
}

func TestNewClientStripsTrailingSlash(t *testing.T) {
	c, err := NewClient(ClientConfig{BaseURL: "http://example.com/", APIKey: "k-123"})
	if err != nil {
		t.Fatal(err)
	}
	if c.BaseURL() != "http://example.com" {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
}

func TestRetryEligibleStatusesGetExactlyMaxRetriesAttempts(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503, 504} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			var mu sync.Mutex
			attempts := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				attempts++
				mu.Unlock()
				w.WriteHeader(status)
			}))
			defer server.Close()

			c := newTestClient(t, server.URL)
			_, err := c.GetWorkflows(context.Background())
			if err == nil {
				t.Fatal("GetWorkflows() succeeded against failing server")
			}
			if attempts != 3 {
				t.Errorf("attempts = %d, want exactly 3", attempts)
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != status {
				t.Errorf("error = %v, want APIError with status %d", err, status)
			}
		})
	}
}

func TestClientErrorsGetExactlyOneAttempt(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			var mu sync.Mutex
			attempts := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				attempts++
				mu.Unlock()
				w.WriteHeader(status)
			}))
			defer server.Close()

			c := newTestClient(t, server.URL)
			if _, err := c.GetWorkflows(context.Background()); err == nil {
				t.Fatal("GetWorkflows() succeeded against failing server")
			}
			if attempts != 1 {
				t.Errorf("attempts = %d, want exactly 1", attempts)
			}
		})
	}
}

func TestBackoffIsMonotonicallyExponential(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	base := 20 * time.Millisecond
	c, err := NewClient(ClientConfig{
		BaseURL:              server.URL,
		APIKey:               "k-123",
		MaxRetries:           3,
		Timeout:              time.Second,
		MaxRequestsPerSecond: 1000,
		BackoffBase:          base,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, _ = c.GetWorkflows(context.Background())

	if len(stamps) != 3 {
		t.Fatalf("attempts = %d, want 3", len(stamps))
	}
	// Delay before retry n (0-indexed) must be at least base * 2^n.
	for n := 0; n < 2; n++ {
		gap := stamps[n+1].Sub(stamps[n])
		want := base * time.Duration(1<<n)
		if gap < want {
			t.Errorf("gap before retry %d = %s, want >= %s", n, gap, want)
		}
	}
}

func TestAPIKeyHeaderIsSent(t *testing.T) {
	var gotKey, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(apiKeyHeader)
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	if _, err := c.GetWorkflows(context.Background()); err != nil {
		t.Fatalf("GetWorkflows() error = %v", err)
	}
	if gotKey != "test-api-key-12345" {
		t.Errorf("api key header = %q", gotKey)
	}
	if strings.Contains(gotQuery, "test-api-key") {
		t.Errorf("api key leaked into query string: %q", gotQuery)
	}
}

func TestDecodeInto(t *testing.T) {
	var out any = "sentinel"
	if err := decodeInto([]byte("   \n"), &out); err != nil {
		t.Fatalf("decodeInto(whitespace) error = %v", err)
	}
	if out != "sentinel" {
		t.Errorf("whitespace body modified result: %v", out)
	}

	out = nil
	if err := decodeInto([]byte(`{"ok":true}`), &out); err != nil {
		t.Fatalf("decodeInto(json) error = %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok || m["ok"] != true {
		t.Errorf("decodeInto(json) = %v", out)
	}

	out = nil
	if err := decodeInto([]byte("plain text, not json"), &out); err != nil {
		t.Fatalf("decodeInto(text) error = %v", err)
	}
	if out != "plain text, not json" {
		t.Errorf("decodeInto(text) = %v, want passthrough", out)
	}
}

func TestGetWorkflowsAcceptsBothListShapes(t *testing.T) {
	for _, body := range []string{
		`{"data":[{"id":"1","name":"A"}]}`,
		`[{"id":"1","name":"A"}]`,
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}))
		c := newTestClient(t, server.URL)
		got, err := c.GetWorkflows(context.Background())
		server.Close()
		if err != nil {
			t.Fatalf("GetWorkflows() error = %v for body %s", err, body)
		}
		if len(got) != 1 || got[0].Name != "A" {
			t.Errorf("GetWorkflows() = %v for body %s", got, body)
		}
	}
}

func TestTestConnectionSuggestions(t *testing.T) {
	t.Run("auth", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		res := newTestClient(t, server.URL).TestConnection(context.Background())
		if res.Success {
			t.Fatal("TestConnection() succeeded against 401")
		}
		if !strings.Contains(res.Suggestion, "API key") {
			t.Errorf("suggestion = %q, want API key guidance", res.Suggestion)
		}
	})

	t.Run("refused", func(t *testing.T) {
		// Grab a port that nothing listens on.
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		addr := l.Addr().String()
		l.Close()

		res := newTestClient(t, "http://"+addr).TestConnection(context.Background())
		if res.Success {
			t.Fatal("TestConnection() succeeded against closed port")
		}
		if !strings.Contains(res.Suggestion, "server is running") {
			t.Errorf("suggestion = %q, want server-up guidance", res.Suggestion)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
		}))
		defer server.Close()

		c, err := NewClient(ClientConfig{
			BaseURL:              server.URL,
			APIKey:               "k-123",
			MaxRetries:           1,
			Timeout:              20 * time.Millisecond,
			MaxRequestsPerSecond: 1000,
			BackoffBase:          time.Millisecond,
		})
		if err != nil {
			t.Fatal(err)
		}
		res := c.TestConnection(context.Background())
		if res.Success {
			t.Fatal("TestConnection() succeeded against hanging server")
		}
		if !strings.Contains(res.Suggestion, "network") {
			t.Errorf("suggestion = %q, want network guidance", res.Suggestion)
		}
	})

	t.Run("dns", func(t *testing.T) {
		res := newTestClient(t, "http://nonexistent.invalid").TestConnection(context.Background())
		if res.Success {
			t.Fatal("TestConnection() succeeded against bogus host")
		}
		if !strings.Contains(res.Suggestion, "URL is correct") {
			t.Errorf("suggestion = %q, want URL guidance", res.Suggestion)
		}
	})
}

func TestRateLimiterThrottles(t *testing.T) {
	l := newRateLimiter(2)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := l.wait(ctx); err != nil {
			t.Fatalf("wait() error = %v", err)
		}
	}
	elapsed := time.Since(start)
	if elapsed < 900*time.Millisecond {
		t.Errorf("third request admitted after %s, want ~1s of throttling", elapsed)
	}
}

func TestRateLimiterReportsBlocking(t *testing.T) {
	l := newRateLimiter(1)
	ctx := context.Background()

	blocked, _ := l.wait(ctx)
	if blocked {
		t.Error("first wait() blocked")
	}
	blocked, _ = l.wait(ctx)
	if !blocked {
		t.Error("second wait() did not block")
	}
}

func TestStatsCounters(t *testing.T) {
	fails := 2
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if fails > 0 {
			fails--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	if _, err := c.GetWorkflows(context.Background()); err != nil {
		t.Fatalf("GetWorkflows() error = %v", err)
	}

	stats := c.Stats()
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Successful != 1 {
		t.Errorf("Successful = %d, want 1", stats.Successful)
	}
	if stats.Failed != 2 {
		t.Errorf("Failed = %d, want 2", stats.Failed)
	}
	if stats.Retried != 2 {
		t.Errorf("Retried = %d, want 2", stats.Retried)
	}

	c.ResetStats()
	if got := c.Stats(); got.Total != 0 || got.Failed != 0 {
		t.Errorf("Stats() after reset = %+v", got)
	}
}

func TestCreateWorkflowPostsBody(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		fmt.Fprint(w, `{"id":"new-1","name":"A","nodes":[]}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	created, err := c.CreateWorkflow(context.Background(), sampleWorkflow())
	if err != nil {
		t.Fatalf("CreateWorkflow() error = %v", err)
	}
	if created.ID != "new-1" {
		t.Errorf("created.ID = %q, want %q", created.ID, "new-1")
	}
	if received["name"] != "A" {
		t.Errorf("posted name = %v", received["name"])
	}
	if _, ok := received["id"]; ok {
		t.Error("posted body includes source id")
	}
}

func sampleWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		ID:   "src-1",
		Name: "A",
		Nodes: []workflow.Node{
			{ID: "n1", Name: "Start", Type: "manualTrigger", TypeVersion: 1},
		},
		Connections: map[string]any{},
	}
}
