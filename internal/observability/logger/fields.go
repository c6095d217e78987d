package logger

import (
	"time"

	"go.uber.org/zap"
)

// ---- HTTP ----

func RequestID(v string) zap.Field         { return zap.String("request_id", v) }
func Method(v string) zap.Field            { return zap.String("method", v) }
func Path(v string) zap.Field              { return zap.String("path", v) }
func Status(v int) zap.Field               { return zap.Int("status", v) }
func Bytes(v int) zap.Field                { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field          { return zap.String("client_ip", v) }
func DurationMs(v time.Duration) zap.Field { return zap.Int64("duration_ms", v.Milliseconds()) }

// ---- Sistema ----

// Layer indica la capa: controller, service, store.
func Layer(v string) zap.Field { return zap.String("layer", v) }

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

// ---- Dominio ----

// UserID identifica al usuario. El username NO se loguea en fallos de login.
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// SessionHash recibe el hash del session id, nunca el id en claro.
func SessionHash(v string) zap.Field { return zap.String("session_hash", v) }

func MenuItemID(v int64) zap.Field      { return zap.Int64("menu_item_id", v) }
func Language(v string) zap.Field       { return zap.String("language", v) }
func Destination(v string) zap.Field    { return zap.String("destination", v) }
func Outcome(v string) zap.Field        { return zap.String("outcome", v) }
func Scope(v string) zap.Field          { return zap.String("scope", v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field   { return zap.Any(key, v) }
