package notifier

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured = errors.New("channel not configured")
	ErrNoChannels    = errors.New("no notification channels enabled")
)

// DeliveryError is a failed send on one channel.
type DeliveryError struct {
	Channel string
	Op      string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Channel, e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func deliveryErr(channel, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return err
	}
	return &DeliveryError{Channel: channel, Op: op, Err: err}
}
