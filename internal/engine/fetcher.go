package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/codefionn/agentrun/internal/consts"
	"github.com/codefionn/agentrun/internal/logger"
)

// ProgramResolver maps an agent id to the URI its bytecode is served from.
// The production implementation is the file-backed agent registry.
type ProgramResolver interface {
	Resolve(agentID uint32) (uri string, ok bool)
}

// Fetcher retrieves agent bytecode and input blobs over HTTP. Every GET is
// bounded by the fetch deadline and must answer with status 200 exactly;
// nothing is retried here, retry policy belongs to whoever rewrites the
// register.
type Fetcher struct {
	resolver ProgramResolver
	client   *http.Client
	log      *logger.Logger
}

// FetcherOption adjusts a Fetcher at construction time
type FetcherOption func(*Fetcher)

// WithHTTPClient substitutes the HTTP client, mainly so tests can shrink the
// deadline.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = client }
}

// NewFetcher creates a Fetcher backed by the given resolver
func NewFetcher(resolver ProgramResolver, log *logger.Logger, opts ...FetcherOption) *Fetcher {
	if log == nil {
		log = logger.Global()
	}
	f := &Fetcher{
		resolver: resolver,
		client:   &http.Client{Timeout: consts.FetchTimeout},
		log:      log.WithPrefix("fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchProgram resolves an agent id to its program URI and downloads the
// bytecode. A registry miss is an opaque upstream failure: the metadata
// source, not the transport, came up empty.
func (f *Fetcher) FetchProgram(ctx context.Context, agentID uint32) ([]byte, error) {
	uri, ok := f.resolver.Resolve(agentID)
	if !ok {
		return nil, newFetchError(FetchUnknown, fmt.Errorf("no program registered for agent %d", agentID))
	}

	program, err := f.get(ctx, uri, consts.MaxProgramBytes)
	if err != nil {
		return nil, err
	}

	f.log.Info("fetched program for agent %d: %d bytes, digest %016x",
		agentID, len(program), xxhash.Sum64(program))
	return program, nil
}

// FetchInput decodes the URI bytes as UTF-8 and downloads the input blob
func (f *Fetcher) FetchInput(ctx context.Context, uriBytes []byte) ([]byte, error) {
	if !utf8.Valid(uriBytes) {
		return nil, newFetchError(FetchInvalidURI, errors.New("input URI is not valid UTF-8"))
	}
	uri := string(uriBytes)

	input, err := f.get(ctx, uri, consts.MaxInputBytes)
	if err != nil {
		return nil, err
	}

	f.log.Info("fetched input from %s: %d bytes", uri, len(input))
	return input, nil
}

// get issues a plain GET bounded by the fetch deadline and reads the body to
// completion, rejecting bodies over maxBytes.
func (f *Fetcher) get(ctx context.Context, uri string, maxBytes int) ([]byte, error) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, newFetchError(FetchInvalidURI, fmt.Errorf("malformed URI %q", uri))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, newFetchError(FetchInvalidURI, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newBadStatusError(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBytes)+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if len(body) > maxBytes {
		return nil, fmt.Errorf("%w: response body over %d bytes", ErrResourceLimit, maxBytes)
	}

	return body, nil
}

func classifyTransportError(err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return newFetchError(FetchDeadline, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newFetchError(FetchDeadline, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return newFetchError(FetchIO, err)
	}
	return newFetchError(FetchUnknown, err)
}
