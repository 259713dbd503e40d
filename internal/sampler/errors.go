package sampler

import "github.com/gabrielpetry/MangoHud/internal/errors"

const (
	// GPU probe errors
	ErrNVMLInit   = errors.ErrorCode("sampler_nvml_init_failed")
	ErrNVMLDevice = errors.ErrorCode("sampler_nvml_device_failed")
)
