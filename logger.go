package cachepool

import "github.com/unkn0wn-root/cachepool/log"

// Fields is a minimal structured field map for logs.
type Fields = log.Fields

// Logger is the tiny leveled logger every component accepts.
// Adapters live in log/zap, log/logrus and log/slog.
type Logger = log.Logger

type NopLogger = log.Nop
