// Package transport exposes the compiled documents over gRPC and HTTP.
package transport

import (
	"context"
	"fmt"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"docgen/internal/logging"
	"docgen/internal/pipeline"
	"docgen/sink/buffer"
)

const (
	RenderMethod = "/docgen.v1.Renderer/Render"

	// Response header metadata of a Render call.
	MDContentType = "x-document-content-type"
	MDFilename    = "x-document-filename"
)

// Server serves the Renderer and the standard health service. Every
// document is a health service of its own, SERVING while its template is
// valid.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
}

func NewServer(docs Documents) *Server {
	s := &Server{grpc: grpc.NewServer(), health: health.NewServer()}
	s.grpc.RegisterService(&rendererDesc, &renderer{docs: docs})
	healthpb.RegisterHealthServer(s.grpc, s.health)

	for _, name := range docs.Names() {
		st := healthpb.HealthCheckResponse_SERVING
		if g, ok := docs.Generator(name); !ok || g.AssertTemplateValid() != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(name, st)
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s
}

func StartServer(port int, docs Documents) (*Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	s := NewServer(docs)
	s.lis = lis
	return s, nil
}

func (s *Server) Serve() error {
	return s.grpc.Serve(s.lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

/*──────── docgen.v1.Renderer ───────*/

// RendererServer renders one document per call. The request carries the
// fields document, language, input, content_type and transform; the reply
// is the document body.
type RendererServer interface {
	Render(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)
}

var rendererDesc = grpc.ServiceDesc{
	ServiceName: "docgen.v1.Renderer",
	HandlerType: (*RendererServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Render", Handler: renderHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docgen/v1/renderer.proto",
}

func renderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RendererServer).Render(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RenderMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RendererServer).Render(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type renderer struct {
	docs Documents
}

func (r *renderer) Render(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error) {
	f := req.GetFields()
	name := f["document"].GetStringValue()

	dest, err := r.render(ctx, name, f)
	if err != nil {
		code, _ := classify(err)
		logging.L().Warn("transport: grpc render failed", "document", name, "code", code, "err", err)
		return nil, status.Error(code, err.Error())
	}

	md := metadata.Pairs(MDContentType, dest.ContentType)
	if dest.Filename != "" {
		md.Append(MDFilename, dest.Filename)
	}
	if err := grpc.SetHeader(ctx, md); err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(dest.Bytes()), nil
}

func (r *renderer) render(ctx context.Context, name string, f map[string]*structpb.Value) (*buffer.Destination, error) {
	g, ok := r.docs.Generator(name)
	if !ok {
		return nil, unknownDocumentError{name}
	}
	transform := true
	if v, ok := f["transform"]; ok {
		if _, isBool := v.GetKind().(*structpb.Value_BoolValue); !isBool {
			return nil, errBadTransform
		}
		transform = v.GetBoolValue()
	}
	input, err := pipeline.ParseInput(f["content_type"].GetStringValue(), strings.NewReader(f["input"].GetStringValue()))
	if err != nil {
		return nil, err
	}
	dest := buffer.New()
	if err := g.Render(ctx, dest, input, transform, nil, f["language"].GetStringValue()); err != nil {
		return nil, err
	}
	return dest, nil
}
