package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Pinger is the minimal reachability probe shared by Redis, the document
// database and the search service clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BlobLister probes blob storage by listing containers.
type BlobLister interface {
	ListContainers(ctx context.Context) ([]string, error)
}

// Checker aggregates health checks for the external dependencies the
// ingestion service needs to do useful work.
type Checker struct {
	redis      Pinger
	blobs      BlobLister
	manifest   Pinger
	search     Pinger
	httpClient *http.Client
	openAIKey  string
}

// Options configures the Checker. Nil dependencies report as unavailable
// rather than panicking, so partial wiring in tests stays cheap.
type Options struct {
	Redis      Pinger
	Blobs      BlobLister
	Manifest   Pinger
	Search     Pinger
	HTTPClient *http.Client
	OpenAIKey  string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses for the health endpoint.
type Summary struct {
	Redis       Status `json:"redis"`
	BlobStorage Status `json:"blob_storage"`
	DocumentDB  Status `json:"document_db"`
	SearchIndex Status `json:"search_index"`
	OpenAI      Status `json:"openai"`
}

// Healthy reports whether every subsystem is up.
func (s Summary) Healthy() bool {
	return s.Redis.OK && s.BlobStorage.OK && s.DocumentDB.OK && s.SearchIndex.OK && s.OpenAI.OK
}

func New(opts Options) *Checker {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Checker{
		redis:      opts.Redis,
		blobs:      opts.Blobs,
		manifest:   opts.Manifest,
		search:     opts.Search,
		httpClient: client,
		openAIKey:  strings.TrimSpace(opts.OpenAIKey),
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:       c.checkPinger(ctx, c.redis),
		BlobStorage: c.checkBlobs(ctx),
		DocumentDB:  c.checkPinger(ctx, c.manifest),
		SearchIndex: c.checkPinger(ctx, c.search),
		OpenAI:      c.checkOpenAI(ctx),
	}
}

func (c *Checker) checkPinger(ctx context.Context, p Pinger) Status {
	if p == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkBlobs(ctx context.Context) Status {
	if c.blobs == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := c.blobs.ListContainers(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkOpenAI(ctx context.Context) Status {
	if c.openAIKey == "" {
		return Status{OK: false, Message: "API key missing"}
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.openai.com/v1/models?limit=1", nil)
	req.Header.Set("Authorization", "Bearer "+c.openAIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Status{OK: false, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
