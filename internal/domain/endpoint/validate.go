package endpoint

import (
	"fmt"
	"strings"
)

// ValidateForPolling checks what a tick needs before it may fetch: a target
// URL and at least one channel able to deliver.
func (c *Config) ValidateForPolling() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.APIEndpoint) == "" {
		return fmt.Errorf("%w: apiEndpoint is empty", ErrInvalidConfig)
	}
	if !c.SMSReady() && !c.EmailReady() {
		return fmt.Errorf("%w: no enabled channel with recipients and delivery endpoint", ErrInvalidConfig)
	}
	return nil
}
