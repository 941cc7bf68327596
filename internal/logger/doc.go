// Package logger wraps zap with:
//   - a global sugared logger using a console or JSON encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level and format parsing used by the CLI flags.
//
// Services take a context and log through it, so every line carries the
// component name and the alarm it is about.
package logger
