package imaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PlaceholderSVG is served when a proxied image cannot be fetched
var PlaceholderSVG = []byte(`<svg width="100" height="100" viewBox="0 0 100 100" xmlns="http://www.w3.org/2000/svg">
<rect width="100" height="100" fill="#f3f4f6"/>
<rect x="20" y="20" width="60" height="60" fill="#e5e7eb" stroke="#d1d5db" stroke-width="2" rx="8"/>
<circle cx="35" cy="35" r="8" fill="#9ca3af"/>
<polygon points="20,70 35,50 50,60 65,45 80,70" fill="#9ca3af"/>
<text x="50" y="85" text-anchor="middle" font-family="Arial, sans-serif" font-size="8" fill="#6b7280">Image Error</text>
</svg>`)

type cachedImage struct {
	data        []byte
	contentType string
	storedAt    time.Time
}

// Proxy fetches remote images on behalf of browsers that cannot load them
// cross-origin, keeping recent responses in memory.
type Proxy struct {
	client     *http.Client
	ttl        time.Duration
	maxEntries int
	evictCount int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]cachedImage
}

// ProxyOptions configures a Proxy
type ProxyOptions struct {
	Timeout    time.Duration
	TTL        time.Duration
	MaxEntries int
	EvictCount int
}

// NewProxy creates an image proxy. Defaults: 10s fetch timeout, 1h TTL,
// 100 entries, evicting the oldest 50 on overflow.
func NewProxy(opts ProxyOptions) *Proxy {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 100
	}
	if opts.EvictCount <= 0 || opts.EvictCount > opts.MaxEntries {
		opts.EvictCount = opts.MaxEntries / 2
	}

	return &Proxy{
		client:     &http.Client{Timeout: opts.Timeout},
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		evictCount: opts.EvictCount,
		now:        time.Now,
		entries:    make(map[string]cachedImage),
	}
}

// Fetch returns the image bytes and content type for url
func (p *Proxy) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if cached, ok := p.lookup(url); ok {
		return cached.data, cached.contentType, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent+" (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	req.Header.Set("Accept", "image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Sec-Fetch-Dest", "image")
	req.Header.Set("Sec-Fetch-Mode", "no-cors")
	req.Header.Set("Sec-Fetch-Site", "cross-site")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected HTTP status %d", res.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}

	contentType := res.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	p.store(url, cachedImage{data: data, contentType: contentType, storedAt: p.now()})
	return data, contentType, nil
}

// Len returns the number of cached images
func (p *Proxy) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *Proxy) lookup(url string) (cachedImage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cached, ok := p.entries[url]
	if !ok {
		return cachedImage{}, false
	}
	if p.now().Sub(cached.storedAt) >= p.ttl {
		delete(p.entries, url)
		return cachedImage{}, false
	}
	return cached, true
}

func (p *Proxy) store(url string, img cachedImage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries[url] = img
	if len(p.entries) <= p.maxEntries {
		return
	}

	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return p.entries[keys[i]].storedAt.Before(p.entries[keys[j]].storedAt)
	})
	for _, k := range keys[:p.evictCount] {
		delete(p.entries, k)
	}

	log.Debug().Int("evicted", p.evictCount).Int("remaining", len(p.entries)).Msg("image proxy cache trimmed")
}
