package addons

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// FetchTimeout bounds one catalog or script request.
	FetchTimeout = 10 * time.Second
	// maxFetchBody bounds a fetched document.
	maxFetchBody = 1 << 20
)

// FetchKind tags a fetcher result.
type FetchKind int

const (
	FetchedIndex FetchKind = iota
	FetchedScript
)

// FetchResult is delivered on the fetcher channel by a worker
// goroutine, one per request.
type FetchResult struct {
	Kind   FetchKind
	Addons []Addon // FetchedIndex
	Addon  Addon   // FetchedScript
	Script string  // FetchedScript
	Err    error
}

// Fetcher pulls the addon index and install scripts from a
// raw-content repository. Each request runs on its own goroutine and
// lands on the results channel, drained by Poll from the UI loop.
type Fetcher struct {
	repository string
	branch     string
	client     *http.Client
	results    chan FetchResult
}

// NewFetcher builds a fetcher for repository/branch. Empty values fall
// back to the defaults.
func NewFetcher(repository, branch string) *Fetcher {
	if repository == "" {
		repository = DefaultRepository
	}
	if branch == "" {
		branch = DefaultBranch
	}
	return &Fetcher{
		repository: strings.TrimRight(repository, "/"),
		branch:     branch,
		client:     &http.Client{Timeout: FetchTimeout},
		results:    make(chan FetchResult, 8),
	}
}

// baseURL is the raw-content root every fetch resolves against.
func (f *Fetcher) baseURL() string {
	return f.repository + "/" + f.branch
}

// scriptURL resolves an addon's script reference.
func (f *Fetcher) scriptURL(a Addon) string {
	if strings.HasPrefix(a.Script, "http://") || strings.HasPrefix(a.Script, "https://") {
		return a.Script
	}
	return f.baseURL() + "/" + strings.TrimLeft(a.Script, "/")
}

// FetchIndex requests the addon catalog on a worker goroutine.
func (f *Fetcher) FetchIndex() {
	go func() {
		body, err := f.get(f.baseURL() + "/" + indexFilename)
		if err != nil {
			f.results <- FetchResult{Kind: FetchedIndex, Err: err}
			return
		}
		var addons []Addon
		if err := json.Unmarshal(body, &addons); err != nil {
			f.results <- FetchResult{Kind: FetchedIndex, Err: fmt.Errorf("parse addon index: %w", err)}
			return
		}
		f.results <- FetchResult{Kind: FetchedIndex, Addons: addons}
	}()
}

// FetchScript requests an addon's install script on a worker
// goroutine.
func (f *Fetcher) FetchScript(a Addon) {
	go func() {
		body, err := f.get(f.scriptURL(a))
		if err != nil {
			f.results <- FetchResult{Kind: FetchedScript, Addon: a, Err: err}
			return
		}
		f.results <- FetchResult{Kind: FetchedScript, Addon: a, Script: string(body)}
	}()
}

// Poll returns one pending result without blocking.
func (f *Fetcher) Poll() (FetchResult, bool) {
	select {
	case res := <-f.results:
		return res, true
	default:
		return FetchResult{}, false
	}
}

func (f *Fetcher) get(url string) ([]byte, error) {
	resp, err := f.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return body, nil
}
