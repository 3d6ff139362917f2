package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Outbound HTTP client timeout per attempt
const OutboundHTTPTimeout = 15 * time.Second

// Worker pool drain budget on shutdown
const WorkerDrainTimeout = 20 * time.Second

// Redelivery batch size per tick
const RedeliveryBatchSize = 50

// Failed deliveries younger than this are left for the next tick
const RedeliveryMinAge = 30 * time.Second

// A claimed delivery still unsettled after this is assumed abandoned and can
// be claimed again. Must exceed the outbound job timeout plus queue wait.
const RedeliveryClaimTimeout = 10 * time.Minute

// Budget for forwarding one Teams turn to the bridge server
const BotTurnTimeout = 60 * time.Second
