package datasource

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// DatasourceAdapterInfo describes a registered adapter.
type DatasourceAdapterInfo struct {
	Type        string   `json:"type"`         // "sqlite", "postgres", "mssql"
	DisplayName string   `json:"display_name"` // "SQLite", "PostgreSQL"
	Description string   `json:"description"`
	Aliases     []string `json:"aliases,omitempty"` // other names accepted for Type, e.g. "sqlserver"
}

// QueryExecutorFactory opens a QueryExecutor from the backend section of the configuration.
type QueryExecutorFactory func(ctx context.Context, config map[string]any) (QueryExecutor, error)

// DatasourceAdapterRegistration contains info + the factory for an adapter.
type DatasourceAdapterRegistration struct {
	Info                 DatasourceAdapterInfo
	QueryExecutorFactory QueryExecutorFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DatasourceAdapterRegistration)
	aliases    = make(map[string]string)
)

func normalizeType(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register is called by each adapter's init() function. Registering an
// alias that already names another adapter panics.
func Register(reg DatasourceAdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()

	typ := normalizeType(reg.Info.Type)
	registry[typ] = reg
	for _, a := range reg.Info.Aliases {
		a = normalizeType(a)
		if prev, ok := aliases[a]; ok && prev != typ {
			panic(fmt.Sprintf("datasource: alias %q already registered for %q", a, prev))
		}
		aliases[a] = typ
	}
}

// RegisterAdapter registers an adapter from its settings decoder and its
// constructor. fromMap turns the backend config map into C and open dials it.
func RegisterAdapter[C any, E QueryExecutor](
	info DatasourceAdapterInfo,
	fromMap func(map[string]any) (C, error),
	open func(context.Context, C) (E, error),
) {
	Register(DatasourceAdapterRegistration{
		Info: info,
		QueryExecutorFactory: func(ctx context.Context, config map[string]any) (QueryExecutor, error) {
			cfg, err := fromMap(config)
			if err != nil {
				return nil, err
			}
			exec, err := open(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return exec, nil
		},
	})
}

// Resolve maps a type name or alias to its registered type.
func Resolve(name string) (string, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return resolveLocked(name)
}

func resolveLocked(name string) (string, bool) {
	name = normalizeType(name)
	if _, ok := registry[name]; ok {
		return name, true
	}
	if typ, ok := aliases[name]; ok {
		return typ, true
	}
	return "", false
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []DatasourceAdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasourceAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	slices.SortFunc(result, func(a, b DatasourceAdapterInfo) int { return strings.Compare(a.Type, b.Type) })
	return result
}

// GetQueryExecutorFactory returns the query executor factory for a type or
// alias, or nil if neither is registered.
func GetQueryExecutorFactory(dsType string) QueryExecutorFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if typ, ok := resolveLocked(dsType); ok {
		return registry[typ].QueryExecutorFactory
	}
	return nil
}

// IsRegistered checks if an adapter type or alias is available.
func IsRegistered(dsType string) bool {
	_, ok := Resolve(dsType)
	return ok
}
