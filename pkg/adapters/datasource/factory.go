package datasource

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
	"github.com/ekaya-inc/sensorql/pkg/logging"
	"github.com/ekaya-inc/sensorql/pkg/retry"
)

// DatasourceAdapterFactory creates adapters from the registry.
type DatasourceAdapterFactory interface {
	// NewQueryExecutor opens and verifies a query executor for the given backend type.
	NewQueryExecutor(ctx context.Context, dsType string, config map[string]any) (QueryExecutor, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []DatasourceAdapterInfo
}

type registryFactory struct {
	retry  *retry.Config
	logger *zap.Logger
}

// NewDatasourceAdapterFactory returns a factory that uses the global registry.
// Transient connection failures are retried with retryCfg (nil uses the defaults).
func NewDatasourceAdapterFactory(retryCfg *retry.Config, logger *zap.Logger) DatasourceAdapterFactory {
	return &registryFactory{
		retry:  retryCfg,
		logger: logger.Named("datasource"),
	}
}

func (f *registryFactory) NewQueryExecutor(ctx context.Context, dsType string, config map[string]any) (QueryExecutor, error) {
	typ, ok := Resolve(dsType)
	if !ok {
		var types []string
		for _, info := range RegisteredAdapters() {
			types = append(types, info.Type)
		}
		return nil, apperrors.Configuration("unsupported backend type %q (available: %s)", dsType, strings.Join(types, ", "))
	}
	dsType = typ
	factory := GetQueryExecutorFactory(typ)

	var exec QueryExecutor
	attempt := 0
	err := retry.DoIfRetryable(ctx, f.retry, func() error {
		attempt++
		e, err := factory(ctx, config)
		if err != nil {
			return err
		}
		if err := e.TestConnection(ctx); err != nil {
			_ = e.Close()
			f.logger.Warn("Backend connection check failed",
				zap.String("type", dsType),
				zap.Int("attempt", attempt),
				zap.String("error", logging.SanitizeError(err)))
			return err
		}
		exec = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s backend: %w", apperrors.ErrBackend, dsType, err)
	}

	f.logger.Info("Backend connected", zap.String("type", dsType), zap.Int("attempts", attempt))
	return exec, nil
}

func (f *registryFactory) ListTypes() []DatasourceAdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements DatasourceAdapterFactory at compile time.
var _ DatasourceAdapterFactory = (*registryFactory)(nil)
