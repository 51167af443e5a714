package visualiser

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client receives terrain frames from a Publisher.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a terrain server without transport security.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(MaxMessageSize())),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Stream calls fn for every received frame until ctx is cancelled, the
// server ends the stream or fn returns an error. A clean end of stream
// returns nil.
func (c *Client) Stream(ctx context.Context, name string, fn func(*Frame) error) error {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], StreamTerrainRPC)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	if err := stream.SendMsg(wrapperspb.String(name)); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close send: %w", err)
	}

	for {
		msg := new(wrapperspb.BytesValue)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		frame, err := DecodeFrame(msg.GetValue())
		if err != nil {
			return err
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}
