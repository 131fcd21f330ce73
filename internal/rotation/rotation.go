// Package rotation swaps the crawl's outbound public address by cycling the
// Elastic IP attached to the host's network interface.
package rotation

import (
	"context"
	"errors"
)

// ErrDisabled is returned by the disabled rotator; with no backend
// configured, a threshold breach has no recovery path.
var ErrDisabled = errors.New("identity rotation disabled")

// Disabled is the rotator used when no backend is configured. Every rotation
// request fails, which the gate treats as fatal for the crawl.
type Disabled struct{}

// Rotate always fails.
func (Disabled) Rotate(context.Context) (string, error) {
	return "", ErrDisabled
}
