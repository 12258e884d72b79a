package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// ConnState はConnectorの接続状態。
type ConnState int

const (
	// StateUninitialized はまだ接続を試行していない状態。
	StateUninitialized ConnState = iota
	// StateConnecting は接続試行が進行中の状態。呼び出し元は同じ試行の結果を待つ。
	StateConnecting
	// StateReady は接続済みでハンドルを返せる状態。
	StateReady
	// StateFailed は直前の接続試行が失敗した状態。次の呼び出しで新たに試行する。
	StateFailed
)

// String は状態名を返す。
func (s ConnState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnectorConfig はConnectorの設定。
type ConnectorConfig struct {
	DatabaseURL string
	// ServerSelectionTimeout は接続確認（Ping）を待つ上限。
	ServerSelectionTimeout time.Duration
	// SocketTimeout は個々のストア操作に適用する上限。
	SocketTimeout time.Duration
	Pool          PoolConfig
}

// connectAttempt は進行中の接続試行。doneのclose後にdb/errが確定する。
type connectAttempt struct {
	done chan struct{}
	db   *sql.DB
	err  error
}

// Connector はデータベース接続を遅延確立し、プロセス内で1つのハンドルを共有する。
// 同時に呼ばれても接続試行は常に1つだけで、待機中の全呼び出し元が同じ結果を受け取る。
// 失敗時は試行を破棄し、次の呼び出しで改めて接続する。
type Connector struct {
	cfg    ConnectorConfig
	logger *slog.Logger
	open   func(databaseURL string, pool PoolConfig) (*sql.DB, error) // テスト用に差し替え可能

	mu      sync.Mutex
	state   ConnState
	db      *sql.DB
	pending *connectAttempt
	closed  bool
}

// NewConnector はConnectorを生成する。接続はEnsureの初回呼び出しまで行わない。
func NewConnector(cfg ConnectorConfig, logger *slog.Logger) *Connector {
	if cfg.ServerSelectionTimeout <= 0 {
		cfg.ServerSelectionTimeout = 10 * time.Second
	}
	if cfg.SocketTimeout <= 0 {
		cfg.SocketTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		cfg:    cfg,
		logger: logger,
		open:   OpenWithPool,
		state:  StateUninitialized,
	}
}

// Ensure は接続済みのハンドルを返す。未接続の場合は接続を確立する。
// 接続試行自体はServerSelectionTimeoutで打ち切られ、呼び出し元のctxでは中断されない。
// ctxが先に終了した場合、その呼び出し元だけが待機をやめる。
// 失敗時はmodel.ErrConnectionをラップしたエラーを返す。
func (c *Connector) Ensure(ctx context.Context) (*sql.DB, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: connector is closed", model.ErrConnection)
	}
	if c.state == StateReady {
		db := c.db
		c.mu.Unlock()
		return db, nil
	}

	attempt := c.pending
	if attempt == nil {
		attempt = &connectAttempt{done: make(chan struct{})}
		c.pending = attempt
		c.state = StateConnecting
		go c.connect(attempt)
	}
	c.mu.Unlock()

	select {
	case <-attempt.done:
		return attempt.db, attempt.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: gave up waiting for database: %w", model.ErrConnection, ctx.Err())
	}
}

// connect は接続試行を実行し、結果を待機中の全呼び出し元に公開する。
func (c *Connector) connect(attempt *connectAttempt) {
	start := time.Now()
	db, err := c.dial()

	c.mu.Lock()
	c.pending = nil
	switch {
	case err != nil:
		c.state = StateFailed
		c.logger.Error("database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
	case c.closed:
		// Close中に接続が完了した場合は破棄する
		db.Close()
		db = nil
		err = fmt.Errorf("%w: connector is closed", model.ErrConnection)
	default:
		c.state = StateReady
		c.db = db
		c.logger.Info("database connection established",
			slog.Duration("elapsed", time.Since(start)),
		)
	}
	attempt.db = db
	attempt.err = err
	c.mu.Unlock()

	close(attempt.done)
}

// dial はハンドルを開き、ServerSelectionTimeout内にPingが通ることを確認する。
// Pingが通るまでハンドルは呼び出し元に渡さない。
func (c *Connector) dial() (*sql.DB, error) {
	db, err := c.open(c.cfg.DatabaseURL, c.cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrConnection, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ServerSelectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: database not reachable within %s: %w",
			model.ErrConnection, c.cfg.ServerSelectionTimeout, err)
	}

	return db, nil
}

// OperationTimeout は個々のストア操作に適用するタイムアウトを返す。
func (c *Connector) OperationTimeout() time.Duration {
	return c.cfg.SocketTimeout
}

// State は現在の接続状態を返す。
func (c *Connector) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ping は接続を確保したうえで疎通を確認する。ヘルスチェック用。
func (c *Connector) Ping(ctx context.Context) error {
	db, err := c.Ensure(ctx)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", model.ErrConnection, err)
	}
	return nil
}

// Close は確立済みの接続を閉じる。以降のEnsureはエラーを返す。
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.state = StateUninitialized
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
