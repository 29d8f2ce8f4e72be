// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AccelByte/extend-clan-battle/pkg/api"
	"github.com/AccelByte/extend-clan-battle/pkg/battle"
	"github.com/AccelByte/extend-clan-battle/pkg/common"
)

const battleServiceName = "clanbattle.v1.BattleService"

// BattleServiceServer is the server API of the battle service. Messages are
// google.protobuf.Struct so that the action payloads stay open-ended.
type BattleServiceServer interface {
	Do(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	WatchStatus(in *structpb.Struct, stream grpc.ServerStream) error
}

// BattleServiceDesc describes the service for grpc.Server registration.
var BattleServiceDesc = grpc.ServiceDesc{
	ServiceName: battleServiceName,
	HandlerType: (*BattleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Do", Handler: unaryHandler("Do", BattleServiceServer.Do)},
		{MethodName: "GetStatus", Handler: unaryHandler("GetStatus", BattleServiceServer.GetStatus)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchStatus", Handler: watchStatusHandler, ServerStreams: true},
	},
	Metadata: "clanbattle/v1/battle.proto",
}

type unaryMethod func(BattleServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, method unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := fmt.Sprintf("/%s/%s", battleServiceName, name)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(BattleServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return method(srv.(BattleServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchStatusHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BattleServiceServer).WatchStatus(in, stream)
}

// BattleService serves the action API over gRPC.
type BattleService struct {
	gateway *api.Gateway
	engine  *battle.Engine
	metrics *Metrics
}

// NewBattleService creates the service. metrics may be nil.
func NewBattleService(gateway *api.Gateway, engine *battle.Engine, metrics *Metrics) *BattleService {
	return &BattleService{
		gateway: gateway,
		engine:  engine,
		metrics: metrics,
	}
}

// Do runs one action. Request fields: groupId, userId, nickname, payload.
// Domain outcomes are carried in the response code, not the gRPC status.
func (s *BattleService) Do(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.AsMap()
	groupID, _ := fields["groupId"].(string)
	userID, _ := fields["userId"].(string)
	if groupID == "" || userID == "" {
		return nil, status.Error(codes.InvalidArgument, "groupId and userId are required")
	}
	nickname, _ := fields["nickname"].(string)
	payload, _ := fields["payload"].(map[string]any)

	scope := common.NewScope(ctx, "BattleService.Do").WithFields(logrus.Fields{"groupId": groupID, "userId": userID})
	defer scope.Finish()

	resp := s.gateway.Handle(scope.Ctx, api.Caller{UserID: userID, Nickname: nickname}, groupID, api.Payload(payload))
	if s.metrics != nil {
		s.metrics.ObserveRequest("grpc", resp.Code)
	}
	scope.RecordResult(resp.Code, resp.Code == api.CodeServerError)
	return toStruct(resp)
}

// GetStatus returns the current boss status of groupId.
func (s *BattleService) GetStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	groupID, err := requireGroupID(in)
	if err != nil {
		return nil, err
	}
	st, err := s.engine.Status(groupID)
	if err != nil {
		return nil, toStatusError(err)
	}
	return toStruct(st)
}

// WatchStatus sends the current status, then every change until the client leaves.
func (s *BattleService) WatchStatus(in *structpb.Struct, stream grpc.ServerStream) error {
	groupID, err := requireGroupID(in)
	if err != nil {
		return err
	}

	st, w, err := s.engine.Follow(groupID)
	if err != nil {
		return toStatusError(err)
	}

	ctx := stream.Context()
	for {
		msg, err := toStruct(st)
		if err != nil {
			return err
		}
		if err := stream.SendMsg(msg); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-w.Done():
			st = w.Value()
			w = w.Next()
		}
	}
}

func requireGroupID(in *structpb.Struct) (string, error) {
	v, ok := in.GetFields()["groupId"]
	if !ok || v.GetStringValue() == "" {
		return "", status.Error(codes.InvalidArgument, "groupId is required")
	}
	return v.GetStringValue(), nil
}

func toStatusError(err error) error {
	kind, ok := battle.KindOf(err)
	switch {
	case !ok:
		logrus.Errorf("battle service error: %v", err)
		return status.Error(codes.Internal, "server error")
	case kind == battle.GroupError:
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.FailedPrecondition, err.Error())
	}
}

// toStruct converts a JSON-tagged value to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}
