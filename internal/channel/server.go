// Package channel exposes the analysis orchestrator over JSON-RPC 2.0.
//
// Each connection is one analysis context: a second ANALYZE on the same
// connection supersedes the first, and CANCEL stops whatever is running.
//
// Methods:
//
//	ANALYZE {comments, cache?} -> {data} | {error, code} | {cancelled: true}
//	CANCEL                     -> {cancelled, reason?}
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/gauthierbraillon/threadlens/internal/analysis"
	"github.com/gauthierbraillon/threadlens/internal/thread"
)

const (
	MethodAnalyze = "ANALYZE"
	MethodCancel  = "CANCEL"
)

// AnalyzeParams carries the comments to analyze. When Cache is given it
// holds the full records and Comments may carry identifiers only.
type AnalyzeParams struct {
	Comments []thread.Comment `json:"comments"`
	Cache    []thread.Comment `json:"cache,omitempty"`
}

// AnalyzeResponse is the ANALYZE reply. Exactly one of Data, Error or
// Cancelled is set.
type AnalyzeResponse struct {
	Data      *thread.Result `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Code      string         `json:"code,omitempty"`
	Cancelled bool           `json:"cancelled,omitempty"`
}

// CancelResponse is the CANCEL reply.
type CancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	Reason    string `json:"reason,omitempty"`
}

// Server answers ANALYZE and CANCEL requests.
type Server struct {
	orchestrator *analysis.Orchestrator
	logger       *slog.Logger
}

// NewServer creates a Server backed by orchestrator.
func NewServer(orchestrator *analysis.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{orchestrator: orchestrator, logger: logger}
}

// Serve handles one connection until it closes or ctx is done. Any run the
// connection started is cancelled when it goes away.
func (s *Server) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	connID := uuid.NewString()
	logger := s.logger.With("conn_id", connID)
	logger.Info("connection opened")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := &connHandler{server: s, connID: connID, logger: logger, ctx: ctx}
	conn := jsonrpc2.NewConn(ctx, jsonrpc2.NewPlainObjectStream(rwc), jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(h.handle)))

	select {
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		_ = conn.Close()
	}

	s.orchestrator.Cancel(connID)
	logger.Info("connection closed")
	return nil
}

// Stdio adapts a reader and writer, such as stdin and stdout, into a stream
// whose Close leaves both open.
func Stdio(r io.Reader, w io.Writer) io.ReadWriteCloser {
	return &stdrwc{r: r, w: w}
}

type stdrwc struct {
	r io.Reader
	w io.Writer
}

func (s *stdrwc) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stdrwc) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *stdrwc) Close() error                { return nil }

type connHandler struct {
	server *Server
	connID string
	logger *slog.Logger
	ctx    context.Context
}

func (h *connHandler) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	logger := h.logger.With("method", req.Method)
	logger.Debug("request received")

	switch req.Method {
	case MethodAnalyze:
		var params AnalyzeParams
		if req.Params == nil {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "ANALYZE requires params"}
		}
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: fmt.Sprintf("invalid ANALYZE params: %v", err)}
		}
		return h.analyze(params), nil

	case MethodCancel:
		if h.server.orchestrator.Cancel(h.connID) {
			return CancelResponse{Cancelled: true}, nil
		}
		return CancelResponse{Cancelled: false, Reason: "no analysis in progress"}, nil

	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: fmt.Sprintf("method not supported: %s", req.Method)}
	}
}

func (h *connHandler) analyze(params AnalyzeParams) AnalyzeResponse {
	source := analysis.StaticComments(resolve(params.Comments, params.Cache))
	out := h.server.orchestrator.Analyze(h.ctx, h.connID, source)

	switch {
	case out.Phase == analysis.PhaseCompleted:
		return AnalyzeResponse{Data: out.Result}
	case out.Err != nil:
		return AnalyzeResponse{Error: out.Err.Error(), Code: analysis.Code(out.Err)}
	case out.Phase == analysis.PhaseCancelled:
		return AnalyzeResponse{Cancelled: true}
	default:
		err := errors.New("analysis ended unexpectedly")
		return AnalyzeResponse{Error: err.Error(), Code: analysis.Code(err)}
	}
}

// resolve replaces each comment with its full cached record when one exists.
func resolve(comments, cache []thread.Comment) []thread.Comment {
	if len(cache) == 0 {
		return comments
	}
	idx := thread.NewIndex(cache)
	out := make([]thread.Comment, 0, len(comments))
	for _, c := range comments {
		if full, ok := idx.Lookup(c.ID); ok {
			out = append(out, full)
			continue
		}
		out = append(out, c)
	}
	return out
}
