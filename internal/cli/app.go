package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/slonigiraf/slonledger/internal/blob"
	"github.com/slonigiraf/slonledger/internal/config"
	"github.com/slonigiraf/slonledger/internal/ledger"
	"github.com/slonigiraf/slonledger/internal/record"
	"github.com/slonigiraf/slonledger/internal/store"
)

// settingActiveSigner names the setting holding the default identity's
// public key.
const settingActiveSigner = "active_signer"

// App is the wired-up environment shared by all commands: config,
// logger, store, engine, and the local identity.
type App struct {
	Config config.Config
	Log    *zap.Logger
	Store  *store.Store
	Engine *ledger.Engine
	Blobs  blob.Store
}

// openApp builds the environment from the root flags.
func openApp(opts *RootOptions) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}

	log, err := newLogger(cfg.LogLevel, opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configure logging", err)
	}

	st, err := store.Open(cfg.DBPath, log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}

	blobs, err := blob.NewDir(cfg.BlobDir)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "open blob dir", err)
	}

	return &App{
		Config: cfg,
		Log:    log,
		Store:  st,
		Engine: ledger.New(st, log),
		Blobs:  blobs,
	}, nil
}

// Close releases the app's resources.
func (a *App) Close() {
	if err := a.Store.Close(); err != nil {
		a.Log.Error("closing database", zap.Error(err))
	}
	_ = a.Log.Sync()
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		level = "debug"
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg.Level = lvl
	return cfg.Build()
}

// Identity loads the active local keypair, creating and persisting one
// on first use.
func (a *App) Identity(ctx context.Context) (*record.Keypair, error) {
	key, ok, err := a.Store.GetSetting(ctx, settingActiveSigner)
	if err != nil {
		return nil, err
	}
	if ok {
		sg, err := a.Store.GetSigner(ctx, record.PublicKey(key))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if err == nil {
			return record.KeypairFromSeed(sg.SecretKey)
		}
		// Setting points at a deleted signer; fall through and mint a
		// fresh one.
	}

	kp, err := record.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	if err := a.Store.InsertSigner(ctx, kp.Signer(time.Now())); err != nil {
		return nil, err
	}
	if err := a.Store.SetSetting(ctx, settingActiveSigner, string(kp.Public)); err != nil {
		return nil, err
	}
	a.Log.Info("generated local identity", zap.String("public_key", string(kp.Public)))
	return kp, nil
}
