package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrNotImplemented  ErrorCode = "not_implemented"

	// Configuration errors
	ErrInvalidConfig      ErrorCode = "invalid_configuration"
	ErrBindFlags          ErrorCode = "bind_flags_failed"
	ErrParseFlags         ErrorCode = "parse_flags_failed"
	ErrReadConfig         ErrorCode = "read_config_failed"
	ErrInvalidInterval    ErrorCode = "invalid_interval"
	ErrInvalidHistorySize ErrorCode = "invalid_history_size"
	ErrInvalidThreshold   ErrorCode = "invalid_threshold"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Process errors
	ErrProcessNotFound   ErrorCode = "process_not_found"
	ErrAccessDenied      ErrorCode = "access_denied"
	ErrInvalidPriority   ErrorCode = "invalid_priority"
	ErrInvalidColumn     ErrorCode = "invalid_column"
	ErrSourceUnavailable ErrorCode = "source_unavailable"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"
	ErrExportFailed    ErrorCode = "export_failed"

	// Metrics errors
	ErrInitMetrics    ErrorCode = "init_metrics_failed"
	ErrCollectMetrics ErrorCode = "collect_metrics_failed"
	ErrCloseMetrics   ErrorCode = "close_metrics_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:           "Internal error occurred",
	ErrInvalidArgument:    "Invalid argument provided",
	ErrNotImplemented:     "Operation not implemented",
	ErrInvalidConfig:      "Invalid configuration",
	ErrBindFlags:          "Failed to bind flags",
	ErrParseFlags:         "Failed to parse flags",
	ErrReadConfig:         "Failed to read configuration",
	ErrInvalidInterval:    "Invalid interval value",
	ErrInvalidHistorySize: "History size must be at least 1",
	ErrInvalidThreshold:   "Threshold must not be negative",
	ErrInvalidLogLevel:    "Invalid log level",
	ErrInitFailed:         "Initialization failed",
	ErrShutdownFailed:     "Shutdown failed",
	ErrAlreadyRunning:     "Another instance is already running",
	ErrProcessNotFound:    "Process no longer exists",
	ErrAccessDenied:       "Access denied",
	ErrInvalidPriority:    "Invalid priority value",
	ErrInvalidColumn:      "Unknown sort column",
	ErrSourceUnavailable:  "Process table unavailable",
	ErrOperationFailed:    "Operation failed",
	ErrTimeout:            "Operation timed out",
	ErrExportFailed:       "Failed to export data",
	ErrInitMetrics:        "Failed to initialize metrics",
	ErrCollectMetrics:     "Failed to collect metrics data",
	ErrCloseMetrics:       "Failed to close metrics connection",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
