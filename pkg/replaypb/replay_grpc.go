package replaypb

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName = "replay.v1.Replay"
)

// Replay_InsertStreamServer is the server-side handle for the InsertStream
// bidirectional stream, mirroring what protoc-gen-go-grpc emits.
type Replay_InsertStreamServer interface {
	Send(*InsertStreamResponse) error
	Recv() (*InsertStreamRequest, error)
	grpc.ServerStream
}

// Replay_InsertStreamClient is the client-side handle for InsertStream.
type Replay_InsertStreamClient interface {
	Send(*InsertStreamRequest) error
	Recv() (*InsertStreamResponse, error)
	grpc.ClientStream
}

type Replay_SampleStreamServer interface {
	Send(*SampleStreamResponse) error
	Recv() (*SampleStreamRequest, error)
	grpc.ServerStream
}

type Replay_SampleStreamClient interface {
	Send(*SampleStreamRequest) error
	Recv() (*SampleStreamResponse, error)
	grpc.ClientStream
}

type Replay_InitializeConnectionServer interface {
	Send(*InitializeConnectionResponse) error
	Recv() (*InitializeConnectionRequest, error)
	grpc.ServerStream
}

type Replay_InitializeConnectionClient interface {
	Send(*InitializeConnectionRequest) error
	Recv() (*InitializeConnectionResponse, error)
	grpc.ClientStream
}

type replayInsertStreamServer struct{ grpc.ServerStream }

func (s *replayInsertStreamServer) Send(m *InsertStreamResponse) error { return s.ServerStream.SendMsg(m) }
func (s *replayInsertStreamServer) Recv() (*InsertStreamRequest, error) {
	m := new(InsertStreamRequest)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type replaySampleStreamServer struct{ grpc.ServerStream }

func (s *replaySampleStreamServer) Send(m *SampleStreamResponse) error { return s.ServerStream.SendMsg(m) }
func (s *replaySampleStreamServer) Recv() (*SampleStreamRequest, error) {
	m := new(SampleStreamRequest)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type replayInitializeConnectionServer struct{ grpc.ServerStream }

func (s *replayInitializeConnectionServer) Send(m *InitializeConnectionResponse) error {
	return s.ServerStream.SendMsg(m)
}
func (s *replayInitializeConnectionServer) Recv() (*InitializeConnectionRequest, error) {
	m := new(InitializeConnectionRequest)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Replay_InsertStream_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ReplayServer).InsertStream(&replayInsertStreamServer{stream})
}

func _Replay_SampleStream_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ReplayServer).SampleStream(&replaySampleStreamServer{stream})
}

func _Replay_InitializeConnection_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ReplayServer).InitializeConnection(&replayInitializeConnectionServer{stream})
}

func _Replay_Checkpoint_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CheckpointRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplayServer).Checkpoint(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Checkpoint"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReplayServer).Checkpoint(ctx, req.(*CheckpointRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Replay_MutatePriorities_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(MutatePrioritiesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplayServer).MutatePriorities(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/MutatePriorities"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReplayServer).MutatePriorities(ctx, req.(*MutatePrioritiesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Replay_Reset_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ResetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplayServer).Reset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Reset"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReplayServer).Reset(ctx, req.(*ResetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Replay_ServerInfo_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ServerInfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReplayServer).ServerInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ServerInfo"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReplayServer).ServerInfo(ctx, req.(*ServerInfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ReplayServiceDesc is the grpc.ServiceDesc protoc-gen-go-grpc would emit
// for the Replay service.
var ReplayServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ReplayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Checkpoint", Handler: _Replay_Checkpoint_Handler},
		{MethodName: "MutatePriorities", Handler: _Replay_MutatePriorities_Handler},
		{MethodName: "Reset", Handler: _Replay_Reset_Handler},
		{MethodName: "ServerInfo", Handler: _Replay_ServerInfo_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "InsertStream", Handler: _Replay_InsertStream_Handler, ServerStreams: true, ClientStreams: true},
		{StreamName: "SampleStream", Handler: _Replay_SampleStream_Handler, ServerStreams: true, ClientStreams: true},
		{StreamName: "InitializeConnection", Handler: _Replay_InitializeConnection_Handler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "replay.proto",
}

func RegisterReplayServer(s grpc.ServiceRegistrar, srv ReplayServer) {
	s.RegisterService(&ReplayServiceDesc, srv)
}

type replayClient struct {
	cc grpc.ClientConnInterface
}

func NewReplayClient(cc grpc.ClientConnInterface) ReplayClient {
	return &replayClient{cc}
}

func (c *replayClient) Checkpoint(ctx context.Context, in *CheckpointRequest) (*CheckpointResponse, error) {
	out := new(CheckpointResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Checkpoint", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) MutatePriorities(ctx context.Context, in *MutatePrioritiesRequest) (*MutatePrioritiesResponse, error) {
	out := new(MutatePrioritiesResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/MutatePriorities", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) Reset(ctx context.Context, in *ResetRequest) (*ResetResponse, error) {
	out := new(ResetResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Reset", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) ServerInfo(ctx context.Context, in *ServerInfoRequest) (*ServerInfoResponse, error) {
	out := new(ServerInfoResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ServerInfo", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

type replayInsertStreamClient struct{ grpc.ClientStream }

func (c *replayInsertStreamClient) Send(m *InsertStreamRequest) error { return c.ClientStream.SendMsg(m) }
func (c *replayInsertStreamClient) Recv() (*InsertStreamResponse, error) {
	m := new(InsertStreamResponse)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *replayClient) InsertStream(ctx context.Context) (Replay_InsertStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &ReplayServiceDesc.Streams[0], "/"+serviceName+"/InsertStream")
	if err != nil {
		return nil, err
	}
	return &replayInsertStreamClient{stream}, nil
}

type replaySampleStreamClient struct{ grpc.ClientStream }

func (c *replaySampleStreamClient) Send(m *SampleStreamRequest) error { return c.ClientStream.SendMsg(m) }
func (c *replaySampleStreamClient) Recv() (*SampleStreamResponse, error) {
	m := new(SampleStreamResponse)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *replayClient) SampleStream(ctx context.Context) (Replay_SampleStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &ReplayServiceDesc.Streams[1], "/"+serviceName+"/SampleStream")
	if err != nil {
		return nil, err
	}
	return &replaySampleStreamClient{stream}, nil
}

type replayInitializeConnectionClient struct{ grpc.ClientStream }

func (c *replayInitializeConnectionClient) Send(m *InitializeConnectionRequest) error {
	return c.ClientStream.SendMsg(m)
}
func (c *replayInitializeConnectionClient) Recv() (*InitializeConnectionResponse, error) {
	m := new(InitializeConnectionResponse)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *replayClient) InitializeConnection(ctx context.Context) (Replay_InitializeConnectionClient, error) {
	stream, err := c.cc.NewStream(ctx, &ReplayServiceDesc.Streams[2], "/"+serviceName+"/InitializeConnection")
	if err != nil {
		return nil, err
	}
	return &replayInitializeConnectionClient{stream}, nil
}
