package main

import (
	"fmt"

	"go.uber.org/zap"

	"pairshare/discovery"
	"pairshare/session"
	"pairshare/storage"
	"pairshare/transfer"
)

// app holds the long-lived pieces one command needs.
type app struct {
	store   *storage.Store
	link    *discovery.Manager
	session *session.Session
}

type appOptions struct {
	onProgress func(transfer.Progress)
}

func openApp(options appOptions) (*app, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}

	linkConfig := discovery.Config{
		ScanTimeout:  cfg.ScanTimeout(),
		SelfDeviceID: cfg.DeviceID,
		DeviceName:   cfg.DeviceName,
		TransferPort: cfg.TransferPort,
		Logger:       logger,
	}
	if probe, err := discovery.NewNetworkManagerProbe(); err != nil {
		logger.Info("NetworkManager unavailable, assuming radio enabled", zap.Error(err))
	} else {
		linkConfig.Radio = probe
	}

	link, err := discovery.NewManager(linkConfig)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("start link layer: %w", err)
	}

	sess, err := session.New(session.Options{
		Manager: link,
		Transfer: transfer.EngineOptions{
			Port:           cfg.TransferPort,
			AcceptTimeout:  cfg.AcceptTimeout(),
			ConnectTimeout: cfg.ConnectTimeout(),
			ChunkSize:      cfg.ChunkSize,
			ReceiveDir:     cfg.ReceiveDir,
			OnProgress:     options.onProgress,
		},
		History: store,
		Logger:  logger,
	})
	if err != nil {
		link.Close()
		_ = store.Close()
		return nil, err
	}

	return &app{store: store, link: link, session: sess}, nil
}

// openStore opens the history database and applies the configured retention.
func openStore() (*storage.Store, error) {
	store, dbPath, err := storage.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Debug("database opened", zap.String("path", dbPath))
	store.SetTransferRetention(cfg.HistoryRetention())
	return store, nil
}

func (a *app) Close() {
	if err := a.session.Close(); err != nil {
		logger.Warn("session close failed", zap.Error(err))
	}
	a.link.Close()
	if err := a.store.Close(); err != nil {
		logger.Warn("database close failed", zap.Error(err))
	}
}
