package rbac

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// GrantCache keeps resolved grant lists in process. Keys embed the company's
// permission version so a bump makes older entries unreachable.
type GrantCache struct {
	lru *expirable.LRU[string, []string]
}

// NewGrantCache builds a cache holding up to size entries for ttl.
func NewGrantCache(size int, ttl time.Duration) *GrantCache {
	if size <= 0 {
		size = 1024
	}
	return &GrantCache{lru: expirable.NewLRU[string, []string](size, nil, ttl)}
}

func grantKey(companyID, memberID, version int64) string {
	return fmt.Sprintf("%d:%d:%d", companyID, memberID, version)
}

// Get returns the cached grants.
func (c *GrantCache) Get(companyID, memberID, version int64) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(grantKey(companyID, memberID, version))
}

// Add stores grants.
func (c *GrantCache) Add(companyID, memberID, version int64, grants []string) {
	if c == nil {
		return
	}
	c.lru.Add(grantKey(companyID, memberID, version), grants)
}

// Purge drops every entry.
func (c *GrantCache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

// Len reports the number of cached entries.
func (c *GrantCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
