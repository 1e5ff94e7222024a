package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Gopher0727/MindBridge/internal/service"
)

const (
	AuthzServiceName = "mindbridge.v1.CircleAuthz"
	CheckMethod      = "/" + AuthzServiceName + "/Check"
)

// CircleAuthzServer answers whether a user may act in a circle. Requests and
// responses are google.protobuf.Struct so no generated stubs are needed:
//
//	request:  {"user_id": string, "circle_id": string}
//	response: {"member": bool, "admin": bool, "pending": bool, "capabilities": [string]}
type CircleAuthzServer interface {
	Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var CircleAuthzServiceDesc = grpc.ServiceDesc{
	ServiceName: AuthzServiceName,
	HandlerType: (*CircleAuthzServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: checkHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mindbridge/v1/authz.proto",
}

func checkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CircleAuthzServer).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CheckMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CircleAuthzServer).Check(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// PermissionChecker is the part of the circle service the RPC needs.
type PermissionChecker interface {
	Permissions(ctx context.Context, userID, circleID string) (*service.Permissions, error)
}

type AuthzServer struct {
	checker PermissionChecker
}

func NewAuthzServer(checker PermissionChecker) *AuthzServer {
	return &AuthzServer{checker: checker}
}

// Register attaches the service to s.
func (a *AuthzServer) Register(s *Server) {
	s.GetServer().RegisterService(&CircleAuthzServiceDesc, a)
}

func (a *AuthzServer) Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := stringField(req, "user_id", false)
	if err != nil {
		return nil, err
	}
	circleID, err := stringField(req, "circle_id", true)
	if err != nil {
		return nil, err
	}

	perms, err := a.checker.Permissions(ctx, userID, circleID)
	if err != nil {
		return nil, toStatus(err)
	}

	caps := make([]any, len(perms.Capabilities))
	for i, c := range perms.Capabilities {
		caps[i] = c
	}
	resp, err := structpb.NewStruct(map[string]any{
		"member":       perms.Member,
		"admin":        perms.Admin,
		"pending":      perms.Pending,
		"capabilities": caps,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// stringField reads a string field. An absent user_id stands for an
// anonymous caller.
func stringField(req *structpb.Struct, name string, required bool) (string, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		if required {
			return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
		}
		return "", nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "%s must be a string", name)
	}
	if required && s.StringValue == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	return s.StringValue, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case service.IsStoreFailure(err):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, service.ErrCircleNotFound):
		return status.Error(codes.NotFound, err.Error())
	case service.IsInvalidInput(err):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// AuthzClient calls CircleAuthz on a remote node.
type AuthzClient struct {
	conn grpc.ClientConnInterface
}

func NewAuthzClient(conn grpc.ClientConnInterface) *AuthzClient {
	return &AuthzClient{conn: conn}
}

func (c *AuthzClient) Check(ctx context.Context, userID, circleID string) (*service.Permissions, error) {
	req, err := structpb.NewStruct(map[string]any{"user_id": userID, "circle_id": circleID})
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, CheckMethod, req, resp); err != nil {
		return nil, err
	}

	fields := resp.GetFields()
	perms := &service.Permissions{
		CircleID: circleID,
		UserID:   userID,
		Member:   fields["member"].GetBoolValue(),
		Admin:    fields["admin"].GetBoolValue(),
		Pending:  fields["pending"].GetBoolValue(),
	}
	for _, v := range fields["capabilities"].GetListValue().GetValues() {
		perms.Capabilities = append(perms.Capabilities, v.GetStringValue())
	}
	return perms, nil
}
