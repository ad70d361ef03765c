package vault

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// RPC method names of the vault service.
const (
	ServiceName         = "agentvault.v1.VaultService"
	MethodGetStatus     = "/" + ServiceName + "/GetStatus"
	MethodIsWhitelisted = "/" + ServiceName + "/IsWhitelisted"
)

// #region client-struct
// GRPCClient reads the vault over gRPC. Messages are structpb.Struct so no
// generated stubs are needed on either side.
type GRPCClient struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewGRPCClient connects to the vault service at addr.
func NewGRPCClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, cc: conn}, nil
}

// NewGRPCClientWithConn wraps an existing connection. The caller owns it.
func NewGRPCClientWithConn(cc grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{cc: cc}
}

// Close shuts down a connection opened by NewGRPCClient.
func (c *GRPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region status
// Status implements Reader.
func (c *GRPCClient) Status(ctx context.Context, agent string) (Status, error) {
	req, err := structpb.NewStruct(map[string]any{"agent": agent})
	if err != nil {
		return Status{}, fmt.Errorf("encode status request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, MethodGetStatus, req, resp); err != nil {
		return Status{}, fmt.Errorf("get status rpc: %w", err)
	}
	return decodeStatus(resp)
}

func decodeStatus(s *structpb.Struct) (Status, error) {
	var st Status
	fields := map[string]*decimal.Decimal{
		"balance":     &st.Balance,
		"daily_limit": &st.DailyLimit,
		"daily_spent": &st.DailySpent,
	}
	for name, dst := range fields {
		v, err := decimalField(s, name)
		if err != nil {
			return Status{}, err
		}
		*dst = v
	}
	if _, ok := s.GetFields()["remaining_allowance"]; ok {
		v, err := decimalField(s, "remaining_allowance")
		if err != nil {
			return Status{}, err
		}
		st.RemainingAllowance = v
	} else {
		st.RemainingAllowance = decimal.Max(st.DailyLimit.Sub(st.DailySpent), decimal.Zero)
	}
	return st, nil
}

// decimalField accepts amounts as decimal strings or numbers.
func decimalField(s *structpb.Struct, name string) (decimal.Decimal, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("status response missing %s", name)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(k.StringValue)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("status field %s: %w", name, err)
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(k.NumberValue), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("status field %s: unexpected kind %T", name, k)
	}
}

// #endregion status

// #region whitelist
// IsWhitelisted implements Reader.
func (c *GRPCClient) IsWhitelisted(ctx context.Context, agent, recipient string) (bool, error) {
	req, err := structpb.NewStruct(map[string]any{"agent": agent, "recipient": recipient})
	if err != nil {
		return false, fmt.Errorf("encode whitelist request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.cc.Invoke(ctx, MethodIsWhitelisted, req, resp); err != nil {
		return false, fmt.Errorf("is whitelisted rpc: %w", err)
	}
	return resp.GetFields()["whitelisted"].GetBoolValue(), nil
}

// #endregion whitelist
