// Package logging provides a simple leveled logging interface for the
// media-variants service and CLI.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (encoder command lines, skip reasons)
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The initial level comes from the DEBUG or LOG_LEVEL environment variables.
// Once configuration is loaded, SetLevel applies the configured log_level.
package logging
