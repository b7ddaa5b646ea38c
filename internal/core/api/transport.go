package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/formkeeper/internal/types"
)

/*
 * gRPC transport.
 *
 * Every message is a google.protobuf.Struct, so remote renderers need no
 * generated stubs: any gRPC client that can send a Struct can drive a form.
 *
 *   Open     {document | spec_name, initial_state}  -> view
 *   Edit     {session_id, key, value, flush}        -> view
 *   Blur     {session_id, key}                      -> view
 *   Snapshot {session_id}                           -> {initialState, state, diff}
 *   Render   {session_id}                           -> {sections}
 *   Close    {session_id}                           -> {}
 *
 * view is {session_id, state, feedback, can_submit}.
 */

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "formkeeper.session.v1.FormSession"

// FormSessionServer is the server API for the FormSession service.
type FormSessionServer interface {
	Open(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Edit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Blur(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Render(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Close(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// FormSessionServiceDesc describes the FormSession service for registration.
var FormSessionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FormSessionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Open", Handler: unary("Open", FormSessionServer.Open)},
		{MethodName: "Edit", Handler: unary("Edit", FormSessionServer.Edit)},
		{MethodName: "Blur", Handler: unary("Blur", FormSessionServer.Blur)},
		{MethodName: "Snapshot", Handler: unary("Snapshot", FormSessionServer.Snapshot)},
		{MethodName: "Render", Handler: unary("Render", FormSessionServer.Render)},
		{MethodName: "Close", Handler: unary("Close", FormSessionServer.Close)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "formkeeper/session/v1/session.proto",
}

// RegisterFormSessionServer registers srv on s.
func RegisterFormSessionServer(s grpc.ServiceRegistrar, srv FormSessionServer) {
	s.RegisterService(&FormSessionServiceDesc, srv)
}

type structCall func(FormSessionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call structCall) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FormSessionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(FormSessionServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Handler adapts a SessionService to FormSessionServer.
type Handler struct {
	svc *SessionService
}

var _ FormSessionServer = (*Handler)(nil)

// NewHandler creates the gRPC adapter for svc.
func NewHandler(svc *SessionService) *Handler {
	return &Handler{svc: svc}
}

// Open implements FormSessionServer.
func (h *Handler) Open(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := req.AsMap()
	document, err := stringField(m, "document", false)
	if err != nil {
		return nil, err
	}
	name, err := stringField(m, "spec_name", false)
	if err != nil {
		return nil, err
	}
	initial, err := objectField(m, "initial_state")
	if err != nil {
		return nil, err
	}

	v, err := h.svc.Open(ctx, OpenRequest{Document: []byte(document), SpecName: name, Initial: initial})
	if err != nil {
		return nil, toStatus(err)
	}
	return viewStruct(v)
}

// Edit implements FormSessionServer.
func (h *Handler) Edit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := req.AsMap()
	id, key, err := sessionAndKey(m)
	if err != nil {
		return nil, err
	}
	flush, _ := m["flush"].(bool)

	v, err := h.svc.Edit(ctx, id, key, m["value"], flush)
	if err != nil {
		return nil, toStatus(err)
	}
	return viewStruct(v)
}

// Blur implements FormSessionServer.
func (h *Handler) Blur(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, key, err := sessionAndKey(req.AsMap())
	if err != nil {
		return nil, err
	}
	v, err := h.svc.Blur(ctx, id, key)
	if err != nil {
		return nil, toStatus(err)
	}
	return viewStruct(v)
}

// Snapshot implements FormSessionServer.
func (h *Handler) Snapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := sessionID(req.AsMap())
	if err != nil {
		return nil, err
	}
	snap, err := h.svc.Snapshot(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(snap)
}

// Render implements FormSessionServer.
func (h *Handler) Render(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := sessionID(req.AsMap())
	if err != nil {
		return nil, err
	}
	sections, err := h.svc.Render(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"sections": sections})
}

// Close implements FormSessionServer.
func (h *Handler) Close(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := sessionID(req.AsMap())
	if err != nil {
		return nil, err
	}
	if err := h.svc.Close(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func viewStruct(v SessionView) (*structpb.Struct, error) {
	return toStruct(map[string]any{
		"session_id": string(v.SessionID),
		"state":      v.State,
		"feedback":   v.Feedback,
		"can_submit": v.CanSubmit,
	})
}

// toStruct normalizes v through JSON so host values of any Go type (typed
// slices, structs with tags) become Struct-compatible.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

func stringField(m map[string]any, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "%s must be a string", key)
	}
	if required && s == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return s, nil
}

func objectField(m map[string]any, key string) (types.State, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return types.State{}, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "%s must be an object", key)
	}
	return types.State(obj), nil
}

func sessionID(m map[string]any) (types.SessionID, error) {
	raw, err := stringField(m, "session_id", true)
	if err != nil {
		return "", err
	}
	id, err := types.ParseSessionID(raw)
	if err != nil {
		return "", status.Errorf(codes.InvalidArgument, "session_id: %v", err)
	}
	return id, nil
}

func sessionAndKey(m map[string]any) (types.SessionID, string, error) {
	id, err := sessionID(m)
	if err != nil {
		return "", "", err
	}
	key, err := stringField(m, "key", true)
	if err != nil {
		return "", "", err
	}
	return id, key, nil
}

// Client calls the FormSession service with plain maps.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with req and returns the response as a map.
func (c *Client) Call(ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
