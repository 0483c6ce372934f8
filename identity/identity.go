// Package identity supplies randomized but plausible client identities so
// successive attempts against the same host do not share one fingerprint.
package identity

import (
	"math/rand/v2"
)

// Identity is the user-agent plus header set presented to a remote server.
type Identity struct {
	Name      string
	UserAgent string
	Headers   map[string]string
	Mobile    bool
}

type weighted struct {
	id     Identity
	weight int
}

// Pool selects identities from a fixed curated table with weighted
// randomness. Read-only after construction; safe for concurrent use.
type Pool struct {
	entries []weighted
	total   int
}

// chromeHeaders are the Sec-* client hints a real desktop Chrome sends.
func chromeHeaders(mobile bool) map[string]string {
	m := "?0"
	platform := `"Windows"`
	if mobile {
		m = "?1"
		platform = `"Android"`
	}
	return map[string]string{
		"Sec-Ch-Ua":          `"Chromium";v="131", "Not_A Brand";v="24", "Google Chrome";v="131"`,
		"Sec-Ch-Ua-Mobile":   m,
		"Sec-Ch-Ua-Platform": platform,
		"Sec-Fetch-Dest":     "document",
		"Sec-Fetch-Mode":     "navigate",
		"Sec-Fetch-Site":     "none",
		"Sec-Fetch-User":     "?1",
		"Upgrade-Insecure-Requests": "1",
	}
}

// defaultTable is the curated desktop/mobile signature table. Weights skew
// toward desktop Chrome, mirroring real traffic distribution.
func defaultTable() []weighted {
	return []weighted{
		{weight: 4, id: Identity{
			Name:      "chrome-win",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			Headers:   chromeHeaders(false),
		}},
		{weight: 3, id: Identity{
			Name:      "chrome-mac",
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			Headers:   chromeHeaders(false),
		}},
		{weight: 2, id: Identity{
			Name:      "firefox-win",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
			Headers: map[string]string{
				"Sec-Fetch-Dest":            "document",
				"Sec-Fetch-Mode":            "navigate",
				"Sec-Fetch-Site":            "none",
				"Upgrade-Insecure-Requests": "1",
			},
		}},
		{weight: 2, id: Identity{
			Name:      "safari-mac",
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
			Headers: map[string]string{
				"Upgrade-Insecure-Requests": "1",
			},
		}},
		{weight: 2, id: Identity{
			Name:      "chrome-android",
			UserAgent: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Mobile Safari/537.36",
			Headers:   chromeHeaders(true),
			Mobile:    true,
		}},
		{weight: 1, id: Identity{
			Name:      "safari-ios",
			UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 18_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Mobile/15E148 Safari/604.1",
			Headers: map[string]string{
				"Upgrade-Insecure-Requests": "1",
			},
			Mobile: true,
		}},
	}
}

// NewPool creates a Pool over the curated identity table.
func NewPool() *Pool {
	entries := defaultTable()
	total := 0
	for _, e := range entries {
		total += e.weight
	}
	return &Pool{entries: entries, total: total}
}

// Next returns a weighted-random identity from the whole table.
func (p *Pool) Next() Identity {
	n := rand.IntN(p.total)
	for _, e := range p.entries {
		n -= e.weight
		if n < 0 {
			return e.id
		}
	}
	return p.entries[0].id
}

// NextDesktop returns a weighted-random desktop identity.
func (p *Pool) NextDesktop() Identity {
	return p.next(false)
}

// NextMobile returns a weighted-random mobile identity. Used after the
// first failed attempt to diversify the presented fingerprint.
func (p *Pool) NextMobile() Identity {
	return p.next(true)
}

func (p *Pool) next(mobile bool) Identity {
	total := 0
	for _, e := range p.entries {
		if e.id.Mobile == mobile {
			total += e.weight
		}
	}
	if total == 0 {
		return p.Next()
	}
	n := rand.IntN(total)
	for _, e := range p.entries {
		if e.id.Mobile != mobile {
			continue
		}
		n -= e.weight
		if n < 0 {
			return e.id
		}
	}
	return p.entries[0].id
}
