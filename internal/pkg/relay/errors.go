package relay

import (
	"errors"
	"fmt"

	"github.com/nimbusbilling/subrelay/internal/pkg/payments"
)

// ClientError marks rejections caused by the event data itself, such as a
// subscription event whose customer carries no user correlation. The
// transport layer surfaces these so the provider redelivers.
type ClientError struct {
	msg string
}

func (e *ClientError) Error() string { return e.msg }

func clientErrorf(format string, args ...any) error {
	return &ClientError{msg: fmt.Sprintf(format, args...)}
}

// IsClientError reports whether err is a data-level rejection.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// lookupError wraps a failed provider lookup with the missing resource name
// so rejections identify what could not be resolved.
func lookupError(err error, resource, id string) error {
	if errors.Is(err, payments.ErrNotFound) {
		return clientErrorf("unable to find %s %s", resource, id)
	}
	return fmt.Errorf("lookup %s %s: %w", resource, id, err)
}
