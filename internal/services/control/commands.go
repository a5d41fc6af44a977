package control

import (
	"context"
	"fmt"

	kafkax "github.com/NordCoder/Feedwatch/internal/repository/kafka"
	"github.com/NordCoder/Feedwatch/internal/services/scheduler"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

// Command names accepted on the control topic. A command is a protobuf
// Struct {command, tag, minutes?}.
const (
	CmdMuteItems   = "mute_items"
	CmdUnmuteItems = "unmute_items"
	CmdMuteAPI     = "mute_api"
	CmdUnmuteAPI   = "unmute_api"
	CmdResetItems  = "reset_items"
	CmdActivate    = "activate"
	CmdDeactivate  = "deactivate"
)

type Commands struct {
	ctl Controller
	log *zap.Logger
}

func NewCommands(ctl Controller, log *zap.Logger) *Commands {
	if log == nil {
		log = zap.L()
	}
	return &Commands{ctl: ctl, log: log.With(zap.String("component", "control.commands"))}
}

// Handler decodes control messages for a kafka consumer. Rejected commands
// are logged and committed so a bad message cannot block the partition.
func (c *Commands) Handler() kafkax.Handler {
	return kafkax.ProtoHandler(
		func() *structpb.Struct { return &structpb.Struct{} },
		func(ctx context.Context, _ []byte, msg *structpb.Struct) error {
			if err := c.Apply(ctx, msg); err != nil {
				c.log.Warn("control command rejected", zap.Error(err))
			}
			return nil
		},
	)
}

func (c *Commands) Apply(ctx context.Context, msg *structpb.Struct) error {
	f := msg.GetFields()
	cmd := f["command"].GetStringValue()
	tag := f["tag"].GetStringValue()
	if tag == "" {
		return fmt.Errorf("command %q: tag is required", cmd)
	}

	var err error
	switch cmd {
	case CmdMuteItems:
		_, err = c.ctl.MuteItems(ctx, tag, int(min(f["minutes"].GetNumberValue(), scheduler.MaxMuteMinutes)))
	case CmdUnmuteItems:
		_, err = c.ctl.UnmuteItems(ctx, tag)
	case CmdMuteAPI:
		_, err = c.ctl.MuteAPI(ctx, tag)
	case CmdUnmuteAPI:
		_, err = c.ctl.UnmuteAPI(ctx, tag)
	case CmdResetItems:
		_, err = c.ctl.ResetItems(ctx, tag)
	case CmdActivate:
		err = c.ctl.Activate(ctx, tag)
	case CmdDeactivate:
		err = c.ctl.Deactivate(ctx, tag)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", cmd, tag, err)
	}
	c.log.Info("control command applied", zap.String("command", cmd), zap.String("tag", tag))
	return nil
}
