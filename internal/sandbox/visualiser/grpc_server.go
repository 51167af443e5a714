package visualiser

import (
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/sandtable/internal/monitoring"
)

// Service and method names on the wire.
const (
	ServiceName      = "sandtable.v1.TerrainService"
	StreamTerrainRPC = "/" + ServiceName + "/StreamTerrain"
)

// TerrainServiceServer is the server API for TerrainService.
type TerrainServiceServer interface {
	// StreamTerrain streams encoded frames until the client goes away. The
	// request carries the client's display name.
	StreamTerrain(req *wrapperspb.StringValue, stream grpc.ServerStream) error
}

func streamTerrainHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(TerrainServiceServer).StreamTerrain(req, stream)
}

// ServiceDesc describes TerrainService for grpc.Server.RegisterService and
// for clients opening the stream.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TerrainServiceServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamTerrain",
			Handler:       streamTerrainHandler,
			ServerStreams: true,
		},
	},
	Metadata: "sandtable/v1/terrain.proto",
}

// Ensure Server implements the gRPC interface.
var _ TerrainServiceServer = (*Server)(nil)

// Server implements TerrainService on top of a Publisher.
type Server struct {
	publisher *Publisher
}

// NewServer creates a new gRPC server.
func NewServer(publisher *Publisher) *Server {
	return &Server{publisher: publisher}
}

// StreamTerrain implements the streaming RPC for terrain frames.
func (s *Server) StreamTerrain(req *wrapperspb.StringValue, stream grpc.ServerStream) error {
	clientID := uuid.NewString()
	client := s.publisher.addClient(clientID, req.GetValue())
	if client == nil {
		return status.Errorf(codes.ResourceExhausted, "client limit %d reached", s.publisher.config.MaxClients)
	}
	defer s.publisher.removeClient(clientID)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.publisher.stopCh:
			return status.Error(codes.Unavailable, "publisher stopped")
		case frame := <-client.frameCh:
			err := stream.SendMsg(wrapperspb.Bytes(frame.data()))
			frame.release()
			if err != nil {
				monitoring.Logf("[gRPC] Send error to %s: %v", clientID, err)
				return err
			}
		}
	}
}

// RegisterService registers the gRPC service with the server.
func RegisterService(grpcServer *grpc.Server, server *Server) {
	grpcServer.RegisterService(&ServiceDesc, server)
}
