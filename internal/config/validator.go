package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers plane-specific validation rules. Must
// be called before validating a PlaneConfig.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	return nil
}

// validateDuration checks that a field parses as a Go duration, when set.
func validateDuration(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := time.ParseDuration(value)
	return err == nil
}

// Validate validates the PlaneConfig using struct tags and custom
// cross-field rules. Returns an error if validation fails, with
// actionable error messages.
func (c *PlaneConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateDurations(); err != nil {
		return err
	}
	if err := c.validateAnchorRepository(); err != nil {
		return err
	}

	return nil
}

// validateDurations parses every duration-bearing field so startup fails
// fast on a malformed value instead of at first use.
func (c *PlaneConfig) validateDurations() error {
	fields := map[string]string{
		"embedding.connect_timeout":  c.Embedding.ConnectTimeout,
		"embedding.request_timeout":  c.Embedding.RequestTimeout,
		"deployment.max_p99_latency": c.Deployment.MaxP99Latency,
		"deployment.sustain_window":  c.Deployment.SustainWindow,
		"refresh.interval":           c.Refresh.Interval,
		"rate_limit.cleanup_interval": c.RateLimit.CleanupInterval,
		"rate_limit.max_ttl":          c.RateLimit.MaxTTL,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", name, value, err)
		}
	}
	return nil
}

// validateAnchorRepository ensures a sqlite driver carries a DSN.
func (c *PlaneConfig) validateAnchorRepository() error {
	if c.AnchorRepository.Driver == "sqlite" && c.AnchorRepository.DSN == "" {
		return errors.New("anchor_repository.dsn is required when driver is \"sqlite\"")
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "duration":
		return fmt.Sprintf("%s must be a valid duration (e.g. \"500ms\", \"30s\")", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
