//go:build integration

// Package containers starts throwaway PostgreSQL and Kafka brokers for
// integration tests. Each container is started once per test binary and
// shared by every suite in it.
package containers

import (
	"sync"
	"testing"
)

type Manager struct {
	postgres lazy[*PostgresContainer]
	kafka    lazy[*KafkaContainer]
}

var manager = &Manager{}

func GetManager() *Manager {
	return manager
}

// GetPostgres returns the shared database. Suites truncate the tables they
// touch in SetupTest.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, NewPostgresContainer)
}

func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, NewKafkaContainer)
}

// lazy starts a container on first use. A failed start is not cached; the
// next caller tries again.
type lazy[T comparable] struct {
	mu sync.Mutex
	v  T
}

func (l *lazy[T]) get(t *testing.T, start func(*testing.T) T) T {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero T
	if l.v == zero {
		l.v = start(t)
	}
	return l.v
}
