// Package redis opens the shared go-redis client and exports its pool
// statistics to Prometheus.
package redis

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"attest/internal/platform/config"
)

type Client struct {
	*redis.Client
}

// New returns nil, nil when no URL is configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

func (c *Client) Check(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Name() string { return "redis" }

// PoolCollector exposes go-redis pool statistics at scrape time.
type PoolCollector struct {
	client    *redis.Client
	hits      *prometheus.Desc
	misses    *prometheus.Desc
	timeouts  *prometheus.Desc
	total     *prometheus.Desc
	idle      *prometheus.Desc
	staleConn *prometheus.Desc
}

func NewPoolCollector(c *redis.Client) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("attest_redis_pool_"+name, help, nil, nil)
	}
	return &PoolCollector{
		client:    c,
		hits:      desc("hits_total", "Number of times a connection was found in the pool"),
		misses:    desc("misses_total", "Number of times a connection was not found in the pool"),
		timeouts:  desc("timeouts_total", "Number of times a connection was not obtained due to timeout"),
		total:     desc("total_conns", "Number of total connections in the pool"),
		idle:      desc("idle_conns", "Number of idle connections in the pool"),
		staleConn: desc("stale_conns_total", "Number of stale connections removed from the pool"),
	}
}

func (p *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.hits
	ch <- p.misses
	ch <- p.timeouts
	ch <- p.total
	ch <- p.idle
	ch <- p.staleConn
}

func (p *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.client.PoolStats()
	ch <- prometheus.MustNewConstMetric(p.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(p.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(p.timeouts, prometheus.CounterValue, float64(s.Timeouts))
	ch <- prometheus.MustNewConstMetric(p.total, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(p.idle, prometheus.GaugeValue, float64(s.IdleConns))
	ch <- prometheus.MustNewConstMetric(p.staleConn, prometheus.CounterValue, float64(s.StaleConns))
}
