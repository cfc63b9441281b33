package persona

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BaSui01/parliament/internal/tlsutil"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultConstitutionFile is the document name looked up by file and GitHub sources.
const DefaultConstitutionFile = "ogma_constitution.yaml"

// Source loads a constitution from somewhere outside the process.
type Source interface {
	Load(ctx context.Context) (*Constitution, error)
	Name() string
}

// ---------------------------------------------------------------------------
// FileSource
// ---------------------------------------------------------------------------

// FileSource searches StartDir and up to MaxDepth of its parents for FileName,
// then the working directory.
type FileSource struct {
	FileName string
	StartDir string
	MaxDepth int
}

// NewFileSource returns a FileSource with the default file name and depth.
func NewFileSource(startDir string) *FileSource {
	return &FileSource{FileName: DefaultConstitutionFile, StartDir: startDir, MaxDepth: 8}
}

func (s *FileSource) Name() string { return "file" }

// Locate returns the first path at which the document exists.
func (s *FileSource) Locate() (string, error) {
	name := s.FileName
	if name == "" {
		name = DefaultConstitutionFile
	}
	// An explicit path wins over the upward search.
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", err
		}
		return name, nil
	}

	dir := s.StartDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	dir, _ = filepath.Abs(dir)

	for i := 0; i <= s.MaxDepth; i++ {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if wd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(wd, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s not found from %s: %w", name, s.StartDir, os.ErrNotExist)
}

func (s *FileSource) Load(_ context.Context) (*Constitution, error) {
	path, err := s.Locate()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read constitution: %w", err)
	}
	return ParseConstitution(data)
}

// ---------------------------------------------------------------------------
// GitHubSource
// ---------------------------------------------------------------------------

// GitHubSource fetches the document through the GitHub contents API using
// the raw media type.
type GitHubSource struct {
	Owner   string
	Repo    string
	Path    string
	Ref     string
	Token   string
	BaseURL string
	Client  *http.Client
}

func (s *GitHubSource) Name() string { return "github" }

// Configured reports whether enough settings are present to attempt a fetch.
func (s *GitHubSource) Configured() bool {
	return s.Token != "" && s.Owner != "" && s.Repo != ""
}

func (s *GitHubSource) Load(ctx context.Context) (*Constitution, error) {
	if !s.Configured() {
		return nil, errors.New("github source is not configured")
	}
	base := s.BaseURL
	if base == "" {
		base = "https://api.github.com"
	}
	path := s.Path
	if path == "" {
		path = DefaultConstitutionFile
	}
	ref := s.Ref
	if ref == "" {
		ref = "main"
	}
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		base, url.PathEscape(s.Owner), url.PathEscape(s.Repo), path, url.QueryEscape(ref))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build github request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	req.Header.Set("Accept", "application/vnd.github.v3.raw")
	req.Header.Set("User-Agent", "Parliament-Constitution-Loader")

	client := s.Client
	if client == nil {
		client = tlsutil.SecureHTTPClient(10 * time.Second)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch constitution: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch constitution: github status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read constitution: %w", err)
	}
	return ParseConstitution(data)
}

// ---------------------------------------------------------------------------
// ChainSource
// ---------------------------------------------------------------------------

// ChainSource returns the first constitution any of its sources yields.
type ChainSource struct {
	sources []Source
	logger  *zap.Logger
}

func NewChainSource(logger *zap.Logger, sources ...Source) *ChainSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainSource{sources: sources, logger: logger}
}

func (s *ChainSource) Name() string { return "chain" }

func (s *ChainSource) Load(ctx context.Context) (*Constitution, error) {
	var errs []error
	for _, src := range s.sources {
		c, err := src.Load(ctx)
		if err == nil {
			s.logger.Debug("constitution loaded", zap.String("source", src.Name()))
			return c, nil
		}
		s.logger.Warn("constitution source failed",
			zap.String("source", src.Name()),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, errors.New("no constitution sources configured")
	}
	return nil, errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// CachedSource
// ---------------------------------------------------------------------------

// Cache is the subset of the Redis cache manager used by CachedSource.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// CachedSource keeps the last loaded constitution in a shared cache so that
// every process does not hit the content API per request.
type CachedSource struct {
	inner  Source
	cache  Cache
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedSource(inner Source, cache Cache, key string, ttl time.Duration, logger *zap.Logger) *CachedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if key == "" {
		key = "parliament:constitution"
	}
	return &CachedSource{inner: inner, cache: cache, key: key, ttl: ttl, logger: logger}
}

func (s *CachedSource) Name() string { return "cached(" + s.inner.Name() + ")" }

func (s *CachedSource) Load(ctx context.Context) (*Constitution, error) {
	if raw, err := s.cache.Get(ctx, s.key); err == nil {
		c, perr := ParseConstitution([]byte(raw))
		if perr == nil {
			return c, nil
		}
		s.logger.Warn("discarding unparsable cached constitution", zap.Error(perr))
	}

	c, err := s.inner.Load(ctx)
	if err != nil {
		return nil, err
	}
	if data, merr := yaml.Marshal(c); merr == nil {
		if serr := s.cache.Set(ctx, s.key, string(data), s.ttl); serr != nil {
			s.logger.Warn("cache constitution failed", zap.Error(serr))
		}
	}
	return c, nil
}
