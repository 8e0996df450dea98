package client

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// proxyPool holds the ordered proxies assigned to one credential. A proxy
// that fails at the transport level is dropped for the rest of the run; once
// the pool is empty requests go out directly.
type proxyPool struct {
	mu      sync.Mutex
	proxies []*url.URL
	clients map[string]*http.Client
	timeout time.Duration
}

func newProxyPool(raw []string, timeout time.Duration) (*proxyPool, error) {
	pool := &proxyPool{
		clients: make(map[string]*http.Client, len(raw)),
		timeout: timeout,
	}
	for _, r := range raw {
		u, err := url.Parse(r)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy %q", r)
		}
		pool.proxies = append(pool.proxies, u)
	}
	return pool, nil
}

// next returns the first live proxy and its client, or nil when exhausted.
func (p *proxyPool) next() (*url.URL, *http.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		return nil, nil
	}
	u := p.proxies[0]
	c, ok := p.clients[u.String()]
	if !ok {
		c = &http.Client{
			Timeout:   p.timeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(u)},
		}
		p.clients[u.String()] = c
	}
	return u, c
}

// drop removes u from the pool.
func (p *proxyPool) drop(u *url.URL) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, candidate := range p.proxies {
		if candidate == u {
			p.proxies = append(p.proxies[:i], p.proxies[i+1:]...)
			break
		}
	}
	if c, ok := p.clients[u.String()]; ok {
		c.CloseIdleConnections()
		delete(p.clients, u.String())
	}
}

// remaining returns how many proxies are still live.
func (p *proxyPool) remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}
