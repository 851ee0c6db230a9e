package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/legout/flowerpower/internal/domain"
)

// validate is a single shared validator instance, following the teacher's
// convention of validating request structs with go-playground/validator
// rather than hand-rolling every field check.
var validate = validator.New(validator.WithRequiredStructEnabled())

// validateTags runs struct-tag validation and translates the first failure
// into a ConfigValidationError, preserving the field-level granularity the
// hand-rolled Validate methods also use.
func validateTags(v any) error {
	if err := validate.Struct(v); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return domain.NewConfigValidationError(fe.Namespace(), fmt.Sprintf("failed %q validation", fe.Tag()))
		}
		return domain.NewConfigValidationError("", err.Error())
	}
	return nil
}

type jobQueueConfigTags struct {
	Type JobQueueBackendType `validate:"required,oneof=rq memory"`
}

// Validate checks the backend type membership via struct-tag validation,
// then the backend-specific connection invariants.
func (c JobQueueConfig) Validate() error {
	if err := validateTags(jobQueueConfigTags{Type: c.Type}); err != nil {
		return err
	}
	if c.Type == BackendRedis && c.BackendHost == "" {
		return domain.NewConfigValidationError("job_queue.backend_host", "required when type=rq")
	}
	if c.NumWorkers < 0 {
		return domain.NewConfigValidationError("job_queue.num_workers", "must be >= 0")
	}
	if c.WorkerMin < 0 {
		return domain.NewConfigValidationError("job_queue.worker_min", "must be >= 0")
	}
	if c.WorkerMin > 0 && c.NumWorkers > 0 && c.WorkerMin > c.NumWorkers {
		return domain.NewConfigValidationError("job_queue.worker_min", "must be <= num_workers")
	}
	return nil
}
