package exporter

import "github.com/gabrielpetry/MangoHud/internal/errors"

const (
	// Socket lifecycle errors. Both abort only the listener; the refresh
	// task keeps the exporter alive.
	ErrListenFailed = errors.ErrorCode("exporter_listen_failed")
	ErrAcceptFailed = errors.ErrorCode("exporter_accept_failed")
)
