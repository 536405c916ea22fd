// Package logger provides adapters for popular logger libraries to work with grove's Logger interface.
//
// The adapters allow you to use your existing logger with grove without writing boilerplate.
// Note that the standard library's slog.Logger already implements grove.Logger directly.
//
// Example with zap:
//
//	zapLogger, _ := zap.NewProduction()
//
//	index, err := grove.New("orders_pk", pool, grove.CompareBytes, 0, 0,
//		grove.WithLogger(logger.NewZap(zapLogger)),
//	)
package logger
