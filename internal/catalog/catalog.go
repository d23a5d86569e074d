package catalog

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kiwari-pos/orderdesk/internal/enum"
	"github.com/kiwari-pos/orderdesk/internal/metrics"
	"github.com/kiwari-pos/orderdesk/internal/order"
	"github.com/sirupsen/logrus"
)

// ProductSource fetches the full product list.
type ProductSource interface {
	ListProducts(ctx context.Context) ([]order.Product, error)
}

type snapshot struct {
	index    *order.Index
	loadedAt time.Time
}

// Cache holds the latest product snapshot. Reads never block on a refresh;
// Load swaps the whole snapshot in one step.
type Cache struct {
	source  ProductSource
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	snap atomic.Pointer[snapshot]

	mu        sync.Mutex
	listeners []func([]order.Product)
}

// New creates an empty cache. Call Load before serving drafts.
func New(source ProductSource, log logrus.FieldLogger, m *metrics.Metrics) *Cache {
	c := &Cache{source: source, log: log, metrics: m}
	c.snap.Store(&snapshot{index: order.NewIndex(nil)})
	return c
}

// Load fetches the catalog and replaces the snapshot. On failure the previous
// snapshot stays in place and the error is returned for the caller to decide
// whether it matters.
func (c *Cache) Load(ctx context.Context) ([]order.Product, error) {
	products, err := c.source.ListProducts(ctx)
	if err != nil {
		c.metrics.CatalogRefresh(false)
		c.log.WithError(err).Warn("catalog refresh failed, keeping previous snapshot")
		return c.Snapshot().Products(), err
	}
	c.metrics.CatalogRefresh(true)
	c.snap.Store(&snapshot{index: order.NewIndex(products), loadedAt: time.Now()})
	c.log.WithField("products", len(products)).Debug("catalog refreshed")
	return products, nil
}

// Snapshot returns the current immutable product index.
func (c *Cache) Snapshot() *order.Index {
	return c.snap.Load().index
}

// LoadedAt reports when the current snapshot was fetched. It is zero until
// the first successful Load.
func (c *Cache) LoadedAt() time.Time {
	return c.snap.Load().loadedAt
}

func (c *Cache) Lookup(id int64) (order.Product, bool) {
	return c.Snapshot().Lookup(id)
}

func (c *Cache) FindByName(name string) (order.Product, bool) {
	return c.Snapshot().FindByName(name)
}

// OnExternalChange registers fn to run after every refresh triggered by a
// change notification.
func (c *Cache) OnExternalChange(fn func([]order.Product)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// HandleEvent reacts to a change notification. Only product changes reload
// the catalog; drafts pick up new ceilings the next time they are read.
func (c *Cache) HandleEvent(ctx context.Context, eventType string) {
	if eventType != enum.EventProductsChanged {
		return
	}
	products, err := c.Load(ctx)
	if err != nil {
		return
	}

	c.mu.Lock()
	listeners := make([]func([]order.Product), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(products)
	}
}

// LowStock lists products at or below threshold, lowest stock first.
func (c *Cache) LowStock(threshold int) []order.Product {
	var out []order.Product
	for _, p := range c.Snapshot().Products() {
		if p.Stock <= threshold {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stock < out[j].Stock })
	return out
}
