package logger

import (
	"time"

	"go.uber.org/zap"
)

// HTTP fields.

func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

func Method(v string) zap.Field {
	return zap.String("method", v)
}

func Path(v string) zap.Field {
	return zap.String("path", v)
}

func Status(v int) zap.Field {
	return zap.Int("status", v)
}

func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// Domain fields.

// CharacterID identifies an EVE character.
func CharacterID(v int64) zap.Field {
	return zap.Int64("character_id", v)
}

// PlayerID identifies a player account.
func PlayerID(v int64) zap.Field {
	return zap.Int64("player_id", v)
}

// Variant identifies a login variant (core.default, core.alt, ...).
func Variant(v string) zap.Field {
	return zap.String("login_variant", v)
}

// Stage identifies the login state machine stage reached.
func Stage(v string) zap.Field {
	return zap.String("stage", v)
}

func GroupName(v string) zap.Field {
	return zap.String("group", v)
}

// System fields.

// Component identifies the component/module emitting the entry.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op identifies the current operation.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer identifies the layer (controller, service, repository).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

func Err(err error) zap.Field {
	return zap.Error(err)
}

// Generic fields.

func Count(v int) zap.Field {
	return zap.Int("count", v)
}

func Key(v string) zap.Field {
	return zap.String("key", v)
}

func String(key, v string) zap.Field {
	return zap.String(key, v)
}

func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}
