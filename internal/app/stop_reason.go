package app

// StopReason is logged when the controller shuts down.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "sigint"
	StopSIGTERM    StopReason = "sigterm"
	StopAppStop    StopReason = "app_stop"
	StopRestart    StopReason = "restart"
	StopFatalError StopReason = "fatal_error"
)
