package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls a remote docgen server.
type Client struct {
	cc *grpc.ClientConn
}

// Request names a document and carries its input, XML or JSON according to
// ContentType.
type Request struct {
	Document    string
	Language    string
	ContentType string
	Input       []byte
	Transform   bool
}

type Document struct {
	Body        []byte
	ContentType string
	Filename    string
}

// Dial connects to target without transport security; opts are appended.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Render(ctx context.Context, req Request) (*Document, error) {
	in, err := structpb.NewStruct(map[string]any{
		"document":     req.Document,
		"language":     req.Language,
		"content_type": req.ContentType,
		"input":        string(req.Input),
		"transform":    req.Transform,
	})
	if err != nil {
		return nil, err
	}
	out := new(wrapperspb.BytesValue)
	var header metadata.MD
	if err := c.cc.Invoke(ctx, RenderMethod, in, out, grpc.Header(&header)); err != nil {
		return nil, err
	}
	doc := &Document{Body: out.GetValue()}
	if v := header.Get(MDContentType); len(v) > 0 {
		doc.ContentType = v[0]
	}
	if v := header.Get(MDFilename); len(v) > 0 {
		doc.Filename = v[0]
	}
	return doc, nil
}

// Check asks for the health of one document, or of the server when
// document is empty.
func (c *Client) Check(ctx context.Context, document string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(c.cc).Check(ctx, &healthpb.HealthCheckRequest{Service: document})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func (c *Client) Close() error { return c.cc.Close() }
