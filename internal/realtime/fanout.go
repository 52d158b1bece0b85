package realtime

import (
	"context"
	"errors"
	"fmt"
)

// MultiPublisher publishes to every transport and joins their errors
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TopicError records the topics a broadcast failed on
type TopicError struct {
	Topic string
	Err   error
}

func (e *TopicError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Topic, e.Err)
}

func (e *TopicError) Unwrap() error {
	return e.Err
}

// PublishAll sends payload on each topic, continuing past failures
func PublishAll(ctx context.Context, p Publisher, payload []byte, topics ...string) error {
	var errs []error
	for _, topic := range topics {
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, &TopicError{Topic: topic, Err: err})
		}
	}
	return errors.Join(errs...)
}
