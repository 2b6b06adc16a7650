// Package shanbay talks to the vendor's private JSON API on behalf of one
// logged-in user.
package shanbay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/japaniel/shanbaysync/pkg/transport"
)

const (
	// DefaultBaseURL is the vendor API root.
	DefaultBaseURL = "https://apiv3.shanbay.com/"
	// PageSize is the fixed page size of the word collection.
	PageSize = 50
	// ReadingApp is the app_name of activities captured in the reading app.
	ReadingApp = "news"

	maxBodySize = 4 << 20
)

var (
	// ErrUnauthorized means the session cookie was rejected.
	ErrUnauthorized = errors.New("shanbay: unauthorized")
	// ErrNotFound means the requested object does not exist.
	ErrNotFound = errors.New("shanbay: not found")
	// ErrMalformed means the payload lacked required fields.
	ErrMalformed = errors.New("shanbay: malformed payload")
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Normalizer Normalizer
}

// Client issues typed requests against the vendor API. Its Session is set by
// CheckCookie and reused by every later call.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	normalize  Normalizer
	session    *Session
	log        *slog.Logger
}

// Session is the credential of one login.
type Session struct {
	mu      sync.RWMutex
	cookies []*http.Cookie
}

// NewSession builds a session from a cookie name->value map.
func NewSession(cookies map[string]string) *Session {
	s := &Session{}
	s.Set(cookies)
	return s
}

// Set replaces the session cookies.
func (s *Session) Set(cookies map[string]string) {
	jar := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		jar = append(jar, &http.Cookie{Name: name, Value: value})
	}
	s.mu.Lock()
	s.cookies = jar
	s.mu.Unlock()
}

func (s *Session) apply(req *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cookies {
		req.AddCookie(c)
	}
}

// NewClient creates a Client. A nil HTTPClient gets the shared transport.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("shanbay: parse base url: %w", err)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = transport.New(transport.Config{Logger: logger})
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = HTMLToText
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    base,
		httpClient: cfg.HTTPClient,
		normalize:  cfg.Normalizer,
		session:    &Session{},
		log:        logger.With("adapter", "shanbay"),
	}, nil
}

// Session returns the credential used by the client.
func (c *Client) Session() *Session { return c.session }

// CheckCookie validates cookies with a profile request. On success they
// become the client's session credential. Non-200 answers yield false, 5xx
// ones included once retries are used up.
func (c *Client) CheckCookie(ctx context.Context, cookies map[string]string) (bool, error) {
	candidate := NewSession(cookies)
	req, err := c.newRequest(ctx, "bayuser/user_detail", nil)
	if err != nil {
		return false, err
	}
	candidate.apply(req)

	resp, err := c.httpClient.Do(req)
	var status *transport.StatusError
	if errors.As(err, &status) {
		c.log.InfoContext(ctx, "cookie rejected", slog.Int("status", status.StatusCode))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("shanbay: check cookie: %w", err)
	}
	defer drainClose(resp)

	if resp.StatusCode != http.StatusOK {
		c.log.InfoContext(ctx, "cookie rejected", slog.Int("status", resp.StatusCode))
		return false, nil
	}
	c.session.Set(cookies)
	c.log.InfoContext(ctx, "cookie accepted")
	return true, nil
}

// FetchWordCount returns the size of the saved-word collection.
func (c *Client) FetchWordCount(ctx context.Context) (int, error) {
	var page apiPage[WordSummary]
	q := url.Values{"ipp": {"1"}, "page": {"1"}}
	if err := c.getJSON(ctx, "news/vocabularies", q, &page); err != nil {
		return 0, fmt.Errorf("shanbay: word count: %w", err)
	}
	return page.Total, nil
}

// FetchWordPage returns one page (1-based) of the collection. A page shorter
// than PageSize is the last one.
func (c *Client) FetchWordPage(ctx context.Context, page int) ([]WordSummary, error) {
	if page < 1 {
		return nil, fmt.Errorf("shanbay: page index %d out of range", page)
	}
	var p apiPage[WordSummary]
	q := url.Values{"ipp": {strconv.Itoa(PageSize)}, "page": {strconv.Itoa(page)}}
	if err := c.getJSON(ctx, "news/vocabularies", q, &p); err != nil {
		return nil, fmt.Errorf("shanbay: word page %d: %w", page, err)
	}
	for i, w := range p.Objects {
		if w.ID == "" {
			return nil, fmt.Errorf("shanbay: word page %d item %d: %w", page, i, ErrMalformed)
		}
	}
	return p.Objects, nil
}

// FetchWordDetail returns the dictionary entry and recent activities of a word.
func (c *Client) FetchWordDetail(ctx context.Context, wordID string) (*WordDetail, error) {
	var d WordDetail
	if err := c.getJSON(ctx, "news/vocabularies/"+wordID, nil, &d); err != nil {
		return nil, fmt.Errorf("shanbay: word %s: %w", wordID, err)
	}
	if err := d.validate(); err != nil {
		return nil, fmt.Errorf("shanbay: word %s: %w", wordID, err)
	}
	return &d, nil
}

// FetchExamples returns the example sentences of a word followed by two
// empty sentinel pairs.
func (c *Client) FetchExamples(ctx context.Context, wordID string) (*ExampleSeq, error) {
	var p apiPage[apiExample]
	if err := c.getJSON(ctx, "news/vocabularies/"+wordID+"/examples", nil, &p); err != nil {
		return nil, fmt.Errorf("shanbay: examples of %s: %w", wordID, err)
	}
	pairs := make([]ExamplePair, 0, len(p.Objects))
	for _, e := range p.Objects {
		pairs = append(pairs, ExamplePair{EN: e.ContentEN, CN: e.ContentCN})
	}
	return NewExampleSeq(pairs...), nil
}

// FetchSentenceTranslation returns the normalized Chinese translation of a
// captured sentence.
func (c *Client) FetchSentenceTranslation(ctx context.Context, sentenceID string) (string, error) {
	var t apiTranslation
	if err := c.getJSON(ctx, "news/sentences/"+sentenceID+"/bilingual", nil, &t); err != nil {
		return "", fmt.Errorf("shanbay: sentence %s: %w", sentenceID, err)
	}
	if t.Translation == nil {
		return "", fmt.Errorf("shanbay: sentence %s: %w: no translation", sentenceID, ErrMalformed)
	}
	return c.normalize(*t.Translation), nil
}

// FetchArticle returns the metadata of an article or book chapter.
func (c *Client) FetchArticle(ctx context.Context, articleID string) (*Article, error) {
	var a Article
	if err := c.getJSON(ctx, "news/articles/"+articleID, nil, &a); err != nil {
		return nil, fmt.Errorf("shanbay: article %s: %w", articleID, err)
	}
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("shanbay: article %s: %w", articleID, err)
	}
	return &a, nil
}

// FetchBookCatalog returns the static catalog of a book, or nil, nil when
// the book has none.
func (c *Client) FetchBookCatalog(ctx context.Context, bookID string) (*Catalog, error) {
	var cat Catalog
	err := c.getJSON(ctx, "news/books/"+bookID+"/static_catalog", nil, &cat)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("shanbay: catalog %s: %w", bookID, err)
	}
	if cat.ID == "" {
		cat.ID = bookID
	}
	return &cat, nil
}

func (c *Client) newRequest(ctx context.Context, path string, query url.Values) (*http.Request, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("shanbay: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, path, query)
	if err != nil {
		return err
	}
	c.session.apply(req)

	c.log.DebugContext(ctx, "shanbay request", slog.String("path", path))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer drainClose(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode json: %w", ErrMalformed, err)
	}
	return nil
}

func drainClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
