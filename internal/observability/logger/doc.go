// Package logger provides a singleton Zap logger with context-based scoping.
//
// A single global instance is initialized once with Init(); every request
// gets its own scoped child logger (request_id, character_id, ...) via the
// request-id middleware without building a new core. "dev" logs to a colored
// console, "prod" to JSON.
//
// Initialization (once, in main):
//
//	logger.Init(logger.Config{
//	    Env:   os.Getenv("APP_ENV"),   // "dev" or "prod"
//	    Level: os.Getenv("LOG_LEVEL"), // "debug", "info", "warn", "error"
//	})
//	defer logger.Sync()
//
// In controllers/services (with context):
//
//	log := logger.From(ctx)
//	log.Info("login completed", logger.CharacterID(id))
//
// Without a context the singleton is used directly: logger.L().
package logger
