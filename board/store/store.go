package store

import (
	"context"

	"hamboard/board/types"
)

// Interface message board storage
type Interface interface {
	CreateMessage(ctx context.Context, author string, content string) (*types.Message, error)
	ListMessages(ctx context.Context, opts MessageListOpt) ([]*types.Message, error)
	GetMessage(ctx context.Context, id string) (*types.Message, error)
}

// MessageListOpt filter of ListMessages
type MessageListOpt struct {
	Author string // callsign, empty for all
	Limit  int    `validate:"min=0,max=1000"` // types.DefaultListLimit if zero
}
