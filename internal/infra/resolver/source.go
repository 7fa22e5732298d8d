package resolver

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
)

// localSource is media preloaded to a file on local disk.
type localSource struct {
	path string
}

// NewLocalSource returns a source backed by a local file.
func NewLocalSource(path string) *localSource {
	return &localSource{path: path}
}

func (s *localSource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening preloaded media %s", s.path)
	}
	return f, nil
}

func (s *localSource) Location() string {
	return s.path
}

func (s *localSource) Local() bool {
	return true
}

// remoteSource is media streamed on demand from a direct media URL.
type remoteSource struct {
	url    string
	client *http.Client
}

// NewRemoteSource returns a source streaming from the given URL.
func NewRemoteSource(url string, client *http.Client) *remoteSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &remoteSource{url: url, client: client}
}

func (s *remoteSource) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building media request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching media stream")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, errors.Newf("media stream returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *remoteSource) Location() string {
	return s.url
}

func (s *remoteSource) Local() bool {
	return false
}
