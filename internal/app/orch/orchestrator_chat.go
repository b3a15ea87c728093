package orch

import (
	"context"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/protocol"
)

func (o *Orchestrator) StartScreenShare(_ context.Context, id core.ConnID, _ protocol.StartScreenShare) (any, error) {
	c, err := o.roomConn(id)
	if err != nil {
		return nil, err
	}
	return o.Screens.Start(c)
}

func (o *Orchestrator) StopScreenShare(_ context.Context, id core.ConnID, _ protocol.StopScreenShare) (any, error) {
	c, err := o.roomConn(id)
	if err != nil {
		return nil, err
	}
	return o.Screens.Stop(c.RoomID, c.UserID, c.Admin)
}

func (o *Orchestrator) GetScreenSharer(_ context.Context, id core.ConnID, _ protocol.GetScreenSharer) (any, error) {
	c, err := o.roomConn(id)
	if err != nil {
		return nil, err
	}
	data := protocol.ScreenShareData{RoomID: c.RoomID}
	if share, ok := o.Screens.Current(c.RoomID); ok {
		data.Share = &share
		data.UserID = share.UserID
	}
	return data, nil
}

func (o *Orchestrator) SendMessage(ctx context.Context, id core.ConnID, m protocol.SendMessage) (any, error) {
	c, err := o.roomConn(id)
	if err != nil {
		return nil, err
	}
	return o.Chat.Send(ctx, c, m.Message)
}

func (o *Orchestrator) GetChatHistory(ctx context.Context, id core.ConnID, m protocol.GetChatHistory) (any, error) {
	c, err := o.roomConn(id)
	if err != nil {
		return nil, err
	}
	msgs, err := o.Chat.History(ctx, c.MeetingID, m.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"roomId": c.RoomID, "messages": msgs}, nil
}
