package kafka

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// ErrDecode marks a message that can never be handled. The consumer commits
// such messages instead of leaving them to block the group.
var ErrDecode = errors.New("kafka: undecodable message")

// ProtoHandler decodes every value into a fresh M from ctor before calling
// handle.
func ProtoHandler[M proto.Message](ctor func() M, handle func(context.Context, []byte, M) error) Handler {
	return func(ctx context.Context, key, value []byte) error {
		msg := ctor()
		if err := proto.Unmarshal(value, msg); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrDecode, msg.ProtoReflect().Descriptor().FullName(), err)
		}
		return handle(ctx, key, msg)
	}
}
