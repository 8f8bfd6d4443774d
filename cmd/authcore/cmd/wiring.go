package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/procuregov/authcore"
	"github.com/procuregov/authcore/audit/kafkasink"
	"github.com/procuregov/authcore/internal/config"
	"github.com/procuregov/authcore/session"
	boltstore "github.com/procuregov/authcore/store/bbolt"
	mysqlstore "github.com/procuregov/authcore/store/mysql"
	pgstore "github.com/procuregov/authcore/store/postgres"
	sqlitestore "github.com/procuregov/authcore/store/sqlite"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsDevelopment() {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// principalWriter is a principal store that can also be written to.
type principalWriter interface {
	authcore.PrincipalStore
	PutPrincipal(ctx context.Context, p authcore.Principal) error
}

type stores struct {
	records    session.RecordStore
	principals authcore.PrincipalStore
	closers    []io.Closer
}

func (s *stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

// openStores connects the configured record and principal stores.
// The memory driver keeps both in process and is meant for --dev.
func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.StoreMemory:
		return &stores{
			records:    session.NewMemoryRecords(),
			principals: authcore.NewMemoryPrincipalStore(),
		}, nil
	case config.StoreBolt:
		records, err := boltstore.Open(cfg.StoreDSN)
		if err != nil {
			return nil, err
		}
		principals, err := sqlitestore.Open(ctx, cfg.PrincipalDSN)
		if err != nil {
			records.Close()
			return nil, err
		}
		return &stores{records: records, principals: principals, closers: []io.Closer{records, principals}}, nil
	}

	w, closer, err := openSQL(ctx, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return nil, err
	}
	records, ok := w.(session.RecordStore)
	if !ok {
		closer.Close()
		return nil, fmt.Errorf("%s store does not hold session records", cfg.StoreDriver)
	}
	return &stores{records: records, principals: w, closers: []io.Closer{closer}}, nil
}

// openPrincipalWriter opens the store principals are managed in.
func openPrincipalWriter(ctx context.Context, cfg config.Config) (principalWriter, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return nil, nil, errors.New("the memory store cannot be managed from the command line")
	case config.StoreBolt:
		return openSQL(ctx, config.StoreSQLite, cfg.PrincipalDSN)
	}
	return openSQL(ctx, cfg.StoreDriver, cfg.StoreDSN)
}

func openSQL(ctx context.Context, driver, dsn string) (principalWriter, io.Closer, error) {
	switch driver {
	case config.StoreSQLite:
		s, err := sqlitestore.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.StoreMySQL:
		s, err := mysqlstore.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.StorePostgres:
		s, err := pgstore.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unsupported store driver %q", driver)
}

// newRedis returns a client for cfg.RedisAddrs, or for an in-process
// miniredis when dev is set. The returned func releases both.
func newRedis(cfg config.Config, dev bool) (redis.UniversalClient, func(), error) {
	addrs := cfg.RedisAddrs
	var mr *miniredis.Miniredis
	if dev {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		addrs = []string{mr.Addr()}
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cleanup := func() {
		_ = client.Close()
		if mr != nil {
			mr.Close()
		}
	}
	return client, cleanup, nil
}

func newAuditSink(cfg config.Config, logger *zap.Logger) authcore.AuditSink {
	if len(cfg.KafkaBrokers) == 0 {
		if cfg.IsDevelopment() {
			return authcore.NewJSONWriterSink(zap.NewStdLog(logger.Named("audit")).Writer())
		}
		return nil
	}
	return kafkasink.New(cfg.KafkaBrokers, cfg.KafkaTopic, logger.Named("audit"))
}
