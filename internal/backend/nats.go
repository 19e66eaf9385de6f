package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultRequestTimeout = 5 * time.Second

// NATS adapts a NATS request/reply worker pool to the Backend interface.
// Workers are expected to serve three subjects under the configured prefix:
// <prefix>.submit, <prefix>.cancel, and <prefix>.status.
type NATS struct {
	nc     *nats.Conn
	prefix string
}

type submitRequest struct {
	UnitID   string `json:"unit_id"`
	Priority int    `json:"priority"`
}

type submitReply struct {
	Handle string `json:"handle"`
	Error  string `json:"error,omitempty"`
}

type handleRequest struct {
	Handle string `json:"handle"`
}

type cancelReply struct {
	Cancelled bool `json:"cancelled"`
}

type statusReply struct {
	State string `json:"state"`
}

// ConnectNATS dials the NATS server and returns a backend adapter.
func ConnectNATS(url, subjectPrefix string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{nc: nc, prefix: strings.TrimSuffix(subjectPrefix, ".")}, nil
}

// Close drains the connection.
func (b *NATS) Close() {
	if b.nc != nil {
		_ = b.nc.Drain()
	}
}

// Submit implements Backend.
func (b *NATS) Submit(ctx context.Context, unitID string, priority int) (string, error) {
	var reply submitReply
	if err := b.request(ctx, b.prefix+".submit", submitRequest{UnitID: unitID, Priority: priority}, &reply); err != nil {
		return "", err
	}
	if reply.Error != "" {
		return "", fmt.Errorf("worker rejected submission: %s", reply.Error)
	}
	if reply.Handle == "" {
		return "", fmt.Errorf("worker returned empty handle")
	}
	return reply.Handle, nil
}

// Cancel implements Backend.
func (b *NATS) Cancel(ctx context.Context, handle string) (bool, error) {
	var reply cancelReply
	if err := b.request(ctx, b.prefix+".cancel", handleRequest{Handle: handle}, &reply); err != nil {
		return false, err
	}
	return reply.Cancelled, nil
}

// Status implements Backend.
func (b *NATS) Status(ctx context.Context, handle string) (TaskState, error) {
	var reply statusReply
	if err := b.request(ctx, b.prefix+".status", handleRequest{Handle: handle}, &reply); err != nil {
		return StateUnknown, err
	}
	switch state := TaskState(reply.State); state {
	case StatePending, StateRunning, StateCompleted, StateFailed, StateCancelled:
		return state, nil
	default:
		return StateUnknown, nil
	}
}

func (b *NATS) request(ctx context.Context, subject string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	timeout := defaultRequestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	msg, err := b.nc.Request(subject, data, timeout)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}
	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", subject, err)
	}
	return nil
}
