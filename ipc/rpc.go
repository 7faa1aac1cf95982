package ipc

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the connect RPC service exposing the bus name and object
// path of spec.md §6.1 over an in-process-equivalent transport, replacing
// the out-of-scope D-Bus wire format while preserving its method/signal
// contract: one unary RPC for every request/response method, one
// server-stream RPC for every signal.
const ServiceName = "pop.upgrade.v1.UpgradeService"

// CallProcedure and SubscribeProcedure are the two RPCs this service
// exposes. Every §6.1 method shares CallProcedure, keyed by a "method"
// field inside the structpb.Struct envelope, rather than one procedure per
// method — mirroring a single D-Bus interface exporting many methods on one
// object path.
const (
	CallProcedure      = "/" + ServiceName + "/Call"
	SubscribeProcedure = "/" + ServiceName + "/Subscribe"
)

// CallHandlerFunc answers one Call RPC invocation.
type CallHandlerFunc func(ctx context.Context, method string, args *structpb.Struct) (*structpb.Struct, error)

// NewCallHandler adapts fn into a connect unary handler mounted at
// CallProcedure. The request envelope's "method" field selects which §6.1
// method runs; "args" carries that method's structpb-encoded arguments.
func NewCallHandler(fn CallHandlerFunc, opts ...connect.HandlerOption) (string, http.Handler) {
	handler := connect.NewUnaryHandler(
		CallProcedure,
		func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
			method, args, err := decodeCall(req.Msg)
			if err != nil {
				return nil, connect.NewError(connect.CodeInvalidArgument, err)
			}
			res, err := fn(ctx, method, args)
			if err != nil {
				return nil, err
			}
			return connect.NewResponse(res), nil
		},
		opts...,
	)
	return CallProcedure, handler
}

// SubscribeHandlerFunc streams signals to one subscriber until ctx is
// cancelled or send returns an error.
type SubscribeHandlerFunc func(ctx context.Context, send func(*structpb.Struct) error) error

// NewSubscribeHandler adapts fn into a connect server-stream handler mounted
// at SubscribeProcedure.
func NewSubscribeHandler(fn SubscribeHandlerFunc, opts ...connect.HandlerOption) (string, http.Handler) {
	handler := connect.NewServerStreamHandler(
		SubscribeProcedure,
		func(ctx context.Context, req *connect.Request[structpb.Struct], stream *connect.ServerStream[structpb.Struct]) error {
			return fn(ctx, stream.Send)
		},
		opts...,
	)
	return SubscribeProcedure, handler
}

// NewCallClient returns a connect client for CallProcedure against baseURL.
func NewCallClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *connect.Client[structpb.Struct, structpb.Struct] {
	return connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+CallProcedure, opts...)
}

// NewSubscribeClient returns a connect client for SubscribeProcedure against
// baseURL.
func NewSubscribeClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *connect.Client[structpb.Struct, structpb.Struct] {
	return connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+SubscribeProcedure, opts...)
}

// EncodeCall builds the Call request envelope for method with args.
func EncodeCall(method string, args *structpb.Struct) (*structpb.Struct, error) {
	if args == nil {
		args = &structpb.Struct{}
	}
	return structpb.NewStruct(map[string]any{
		"method": method,
		"args":   args.AsMap(),
	})
}

func decodeCall(env *structpb.Struct) (string, *structpb.Struct, error) {
	if env == nil {
		return "", nil, fmt.Errorf("ipc: nil call envelope")
	}
	methodVal, ok := env.Fields["method"]
	if !ok {
		return "", nil, fmt.Errorf("ipc: call envelope missing method field")
	}
	method := methodVal.GetStringValue()

	args := &structpb.Struct{}
	if argsVal, ok := env.Fields["args"]; ok {
		if s := argsVal.GetStructValue(); s != nil {
			args = s
		}
	}
	return method, args, nil
}
