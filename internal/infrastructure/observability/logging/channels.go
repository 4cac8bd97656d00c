// Package logging provides structured logging channels for BotForge flow
// engine operations with multi-tenant support.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Channel represents a logical logging channel for different system components
type Channel string

const (
	// System channels
	ChannelSystem   Channel = "system"
	ChannelStartup  Channel = "startup"
	ChannelShutdown Channel = "shutdown"

	// Engine channels
	ChannelEngine   Channel = "engine"   // Flow execution steps
	ChannelCache    Channel = "cache"    // Session/group cache tier
	ChannelGroup    Channel = "group"    // Group/lobby session operations
	ChannelEndpoint Channel = "endpoint" // Endpoint bridge ingestion
	ChannelDispatch Channel = "dispatch" // Outbound action dispatch

	// Infrastructure channels
	ChannelDatabase Channel = "database" // Durable tier operations
	ChannelTenant   Channel = "tenant"   // Multi-tenant operations
	ChannelSweep    Channel = "sweep"    // Background sweeps
	ChannelAuth     Channel = "auth"     // Operator authentication
	ChannelSSE      Channel = "sse"      // Log streaming

	// Performance and monitoring channels
	ChannelPerf  Channel = "performance"
	ChannelAlert Channel = "alert"

	// Development channels
	ChannelDebug Channel = "debug"
	ChannelTrace Channel = "trace"
)

// ChanneledLogger provides structured logging with multiple channels
type ChanneledLogger struct {
	channels map[Channel]*slog.Logger
	config   *LoggerConfig
	configMu sync.RWMutex
}

// LoggerConfig contains configuration options for the channeled logger
type LoggerConfig struct {
	OutputToFile    bool   `json:"outputToFile"`
	OutputToConsole bool   `json:"outputToConsole"`
	LogDirectory    string `json:"logDirectory"`
	JSONFormat      bool   `json:"jsonFormat"`
	IncludeSource   bool   `json:"includeSource"`

	DefaultLevel  slog.Level             `json:"defaultLevel"`
	ChannelLevels map[Channel]slog.Level `json:"channelLevels"`
}

// DefaultLoggerConfig returns a sensible default configuration
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		OutputToFile:    true,
		OutputToConsole: true,
		LogDirectory:    "logs",
		JSONFormat:      true,
		IncludeSource:   false,
		DefaultLevel:    slog.LevelInfo,
		ChannelLevels:   make(map[Channel]slog.Level),
	}
}

var allChannels = []Channel{
	ChannelSystem, ChannelStartup, ChannelShutdown,
	ChannelEngine, ChannelCache, ChannelGroup, ChannelEndpoint, ChannelDispatch,
	ChannelDatabase, ChannelTenant, ChannelSweep, ChannelAuth, ChannelSSE,
	ChannelPerf, ChannelAlert,
	ChannelDebug, ChannelTrace,
}

// NewChanneledLogger creates a new channeled logger with the given configuration
func NewChanneledLogger(config *LoggerConfig) (*ChanneledLogger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}

	logger := &ChanneledLogger{
		channels: make(map[Channel]*slog.Logger),
		config:   config,
	}

	if config.OutputToFile {
		if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	for _, channel := range allChannels {
		channelLogger, err := logger.createChannelLogger(channel)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger for channel %s: %w", channel, err)
		}
		logger.channels[channel] = channelLogger
	}

	return logger, nil
}

// createChannelLogger creates a slog.Logger for a specific channel
func (cl *ChanneledLogger) createChannelLogger(channel Channel) (*slog.Logger, error) {
	cl.configMu.RLock()
	defer cl.configMu.RUnlock()

	level := cl.config.DefaultLevel
	if channelLevel, exists := cl.config.ChannelLevels[channel]; exists {
		level = channelLevel
	}

	var writers []io.Writer

	if cl.config.OutputToConsole {
		writers = append(writers, os.Stdout)
	}

	if cl.config.OutputToFile {
		filename := fmt.Sprintf("%s.log", string(channel))
		path := filepath.Join(cl.config.LogDirectory, filename)

		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}

		writers = append(writers, file)
	}

	// Every log line also feeds the stream broadcaster for the ops log view.
	writers = append(writers, NewStreamWriter())

	var writer io.Writer
	switch len(writers) {
	case 1:
		writer = writers[0]
	case 0:
		writer = os.Stdout
	default:
		writer = io.MultiWriter(writers...)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cl.config.IncludeSource,
	}

	var handler slog.Handler
	if cl.config.JSONFormat {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	return slog.New(handler).With(slog.String("channel", string(channel))), nil
}

func (cl *ChanneledLogger) System() *slog.Logger   { return cl.channels[ChannelSystem] }
func (cl *ChanneledLogger) Startup() *slog.Logger  { return cl.channels[ChannelStartup] }
func (cl *ChanneledLogger) Shutdown() *slog.Logger { return cl.channels[ChannelShutdown] }
func (cl *ChanneledLogger) Engine() *slog.Logger   { return cl.channels[ChannelEngine] }
func (cl *ChanneledLogger) Cache() *slog.Logger    { return cl.channels[ChannelCache] }
func (cl *ChanneledLogger) Group() *slog.Logger    { return cl.channels[ChannelGroup] }
func (cl *ChanneledLogger) Endpoint() *slog.Logger { return cl.channels[ChannelEndpoint] }
func (cl *ChanneledLogger) Dispatch() *slog.Logger { return cl.channels[ChannelDispatch] }
func (cl *ChanneledLogger) Database() *slog.Logger { return cl.channels[ChannelDatabase] }
func (cl *ChanneledLogger) Tenant() *slog.Logger   { return cl.channels[ChannelTenant] }
func (cl *ChanneledLogger) Sweep() *slog.Logger    { return cl.channels[ChannelSweep] }
func (cl *ChanneledLogger) Auth() *slog.Logger     { return cl.channels[ChannelAuth] }
func (cl *ChanneledLogger) SSE() *slog.Logger      { return cl.channels[ChannelSSE] }
func (cl *ChanneledLogger) Perf() *slog.Logger     { return cl.channels[ChannelPerf] }
func (cl *ChanneledLogger) Alert() *slog.Logger    { return cl.channels[ChannelAlert] }
func (cl *ChanneledLogger) Debug() *slog.Logger    { return cl.channels[ChannelDebug] }
func (cl *ChanneledLogger) Trace() *slog.Logger    { return cl.channels[ChannelTrace] }

// GetChannel returns a logger for a specific channel
func (cl *ChanneledLogger) GetChannel(channel Channel) *slog.Logger {
	if logger, exists := cl.channels[channel]; exists {
		return logger
	}
	return cl.channels[ChannelSystem]
}

// WithTenant returns a logger with tenant context
func (cl *ChanneledLogger) WithTenant(channel Channel, tenantID string) *slog.Logger {
	return cl.GetChannel(channel).With(slog.String("tenantId", tenantID))
}

// SetChannelLevel updates the log level for one channel at runtime.
func (cl *ChanneledLogger) SetChannelLevel(channel Channel, level slog.Level) error {
	cl.configMu.Lock()
	cl.config.ChannelLevels[channel] = level
	cl.configMu.Unlock()

	logger, err := cl.createChannelLogger(channel)
	if err != nil {
		return err
	}
	cl.channels[channel] = logger
	return nil
}

// GetChannelLevels returns the effective level per channel.
func (cl *ChanneledLogger) GetChannelLevels() map[Channel]slog.Level {
	cl.configMu.RLock()
	defer cl.configMu.RUnlock()

	levels := make(map[Channel]slog.Level, len(allChannels))
	for _, channel := range allChannels {
		if level, exists := cl.config.ChannelLevels[channel]; exists {
			levels[channel] = level
		} else {
			levels[channel] = cl.config.DefaultLevel
		}
	}
	return levels
}

// LogSlowQuery records a query that exceeded the slow query threshold.
func (cl *ChanneledLogger) LogSlowQuery(query string, duration time.Duration, tenantID string) {
	cl.GetChannel(ChannelPerf).Warn("Slow query detected",
		slog.String("query", query),
		slog.String("duration", duration.String()),
		slog.String("tenantId", tenantID),
	)
}

// LogError logs an error with operation and tenant context on the given channel.
func (cl *ChanneledLogger) LogError(channel Channel, operation string, err error, tenantID string) {
	cl.GetChannel(channel).Error("Operation failed",
		slog.String("operation", operation),
		slog.String("tenantId", tenantID),
		slog.String("error", err.Error()),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	)
}
