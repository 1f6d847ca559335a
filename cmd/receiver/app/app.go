package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/saikumarpv2643/smart-accelerometer/internal/storage"
	"github.com/saikumarpv2643/smart-accelerometer/internal/stream"
	"github.com/saikumarpv2643/smart-accelerometer/internal/transport"
)

// Run receives notifications from the configured transport until ctx is
// cancelled or the stream ends.
func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	source, err := config.NewSource(logger)
	if err != nil {
		return err
	}

	session, err := stream.NewSession(config.Stream, stream.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating stream session: %w", err)
	}

	options := []func(*Orchestrator){
		WithMaxBatchSize(config.Storage.MaxBatchSize),
		WithStatsInterval(time.Duration(config.Settings.StatsInterval)),
		WithCSVExport(config.Export.CSVPath),
	}

	if config.Storage.Path != "" {
		store, sErr := createStorage(&config.Storage)
		if sErr != nil {
			return fmt.Errorf("failed to create storage: %w", sErr)
		}
		defer func() { err = errors.Join(err, store.Close()) }()

		options = append(options, WithRecorder(store))
	}

	deviceOptions := []func(*transport.Device){transport.WithLogger(logger)}
	if config.Transport.Record != "" {
		f, fErr := os.Create(config.Transport.Record)
		if fErr != nil {
			return fmt.Errorf("creating capture file: %w", fErr)
		}
		w := bufio.NewWriter(f)
		defer func() {
			err = errors.Join(err, w.Flush(), f.Close())
		}()

		deviceOptions = append(deviceOptions, transport.WithRecorder(w))
	}

	device := transport.NewDevice(source, deviceOptions...)

	return NewOrchestrator(device, source.Name(), session, logger, options...).Run(ctx)
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := filepath.Dir(config.Path)

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return nil, fmt.Errorf("checking storage directory: %w", err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dir)
	}

	return storage.NewSqliteStore(config.Path), nil
}
