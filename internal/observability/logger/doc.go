// Package logger provee un logger Zap singleton con scoping por contexto.
//
// Inicialización (una vez en main):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "sitegate"})
//	defer logger.Sync()
//
// En controllers/services:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Login"))
//	log.Info("login failed", logger.Outcome("invalid_credentials"))
//
// Nunca se loguean credenciales: no existen helpers para password ni secret key,
// y auth.Credentials se redacta sola al formatearse.
package logger
