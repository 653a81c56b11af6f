// Package mcp exposes the conversion service as Model Context Protocol tools,
// so agents can convert files that already sit on the server's filesystem.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/xrkconv"
	"github.com/aretw0/xrkconv/internal/logging"
	"github.com/aretw0/xrkconv/pkg/domain"
	"github.com/aretw0/xrkconv/pkg/workspace"
	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Converter is the part of the service the tools drive.
type Converter interface {
	Convert(ctx context.Context, up xrkconv.Upload) (*xrkconv.Delivery, error)
	Sweep(ctx context.Context, minAge time.Duration) (workspace.SweepReport, error)
}

// ConvertArgs are the arguments of the convert tool.
type ConvertArgs struct {
	Path    string `json:"path"`
	OutDir  string `json:"out_dir"`
	Extract bool   `json:"extract"`
}

// ConvertResponse describes the files a conversion wrote.
type ConvertResponse struct {
	SessionID      string   `json:"session_id" jsonschema_description:"Session that produced the files"`
	Files          []string `json:"files" jsonschema_description:"Absolute paths written under out_dir"`
	Archive        bool     `json:"archive" jsonschema_description:"Whether the converter produced several files"`
	Digest         string   `json:"digest,omitempty" jsonschema_description:"Hex BLAKE3 of the delivered artifact"`
	ConversionTime float64  `json:"conversion_time" jsonschema_description:"Seconds spent converting"`
}

// SweepArgs are the arguments of the sweep tool.
type SweepArgs struct {
	MinAge string `json:"min_age"`
}

// SweepResponse mirrors workspace.SweepReport.
type SweepResponse struct {
	Removed []string `json:"removed"`
	Kept    int      `json:"kept"`
	Failed  int      `json:"failed"`
}

// Server wraps a Converter as an MCP server.
type Server struct {
	conv      Converter
	logger    *slog.Logger
	now       func() time.Time
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for tool failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an MCP server named xrkconv at the given version.
func NewServer(conv Converter, version string, opts ...Option) *Server {
	s := &Server{
		conv:      conv,
		logger:    logging.NewNop(),
		now:       time.Now,
		mcpServer: server.NewMCPServer("xrkconv", strings.TrimSpace(version), server.WithToolCapabilities(false)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on Stdin/Stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// SSEHandler routes the SSE transport: GET /sse opens the stream and
// POST /message carries requests.
func (s *Server) SSEHandler(baseURL string) http.Handler {
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	r := chi.NewRouter()
	r.Use(cors)
	r.Handle("/sse", sse.SSEHandler())
	r.Handle("/message", sse.MessageHandler())
	return r
}

// ServeSSE listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.SSEHandler("http://" + host),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "addr", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	convertTool := mcp.NewTool("convert",
		mcp.WithDescription("Convert a telemetry file on the server's filesystem and write the result into out_dir."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the file to convert")),
		mcp.WithString("out_dir", mcp.Required(), mcp.Description("Directory the result is written into; created if missing")),
		mcp.WithBoolean("extract", mcp.Description("Unpack multi-file results instead of writing a zip archive")),
		mcp.WithOutputSchema[ConvertResponse](),
	)
	s.mcpServer.AddTool(convertTool, mcp.NewStructuredToolHandler(s.handleConvert))

	sweepTool := mcp.NewTool("sweep",
		mcp.WithDescription("Remove workspaces under the workspace root that no live session owns."),
		mcp.WithString("min_age", mcp.Description("Keep entries modified more recently than this Go duration, e.g. 10m")),
		mcp.WithOutputSchema[SweepResponse](),
	)
	s.mcpServer.AddTool(sweepTool, mcp.NewStructuredToolHandler(s.handleSweep))
}

func (s *Server) handleConvert(ctx context.Context, request mcp.CallToolRequest, args ConvertArgs) (ConvertResponse, error) {
	if args.Path == "" || args.OutDir == "" {
		return ConvertResponse{}, errors.New("path and out_dir are required")
	}

	in, err := os.Open(args.Path)
	if err != nil {
		return ConvertResponse{}, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	start := s.now()
	d, err := s.conv.Convert(ctx, xrkconv.Upload{Name: filepath.Base(args.Path), Body: in})
	elapsed := s.now().Sub(start)
	if err != nil {
		s.logger.Info("MCP convert failed", "path", args.Path, "err", err)
		return ConvertResponse{}, describeFailure(err)
	}
	defer d.Close()

	files, err := d.SaveTo(args.OutDir, args.Extract)
	if err != nil {
		return ConvertResponse{}, fmt.Errorf("save result: %w", err)
	}
	return ConvertResponse{
		SessionID:      d.SessionID,
		Files:          files,
		Archive:        d.Archive,
		Digest:         d.Digest,
		ConversionTime: elapsed.Seconds(),
	}, nil
}

// describeFailure appends the converter's streams, which are usually the
// only hint at what went wrong.
func describeFailure(err error) error {
	res := domain.ResultOf(err)
	if res == nil || (res.Stdout == "" && res.Stderr == "") {
		return err
	}
	return fmt.Errorf("%w\n--- converter stdout ---\n%s\n--- converter stderr ---\n%s", err, res.Stdout, res.Stderr)
}

func (s *Server) handleSweep(ctx context.Context, request mcp.CallToolRequest, args SweepArgs) (SweepResponse, error) {
	var minAge time.Duration
	if args.MinAge != "" {
		d, err := time.ParseDuration(args.MinAge)
		if err != nil || d < 0 {
			return SweepResponse{}, fmt.Errorf("invalid min_age %q", args.MinAge)
		}
		minAge = d
	}

	report, err := s.conv.Sweep(ctx, minAge)
	if err != nil {
		return SweepResponse{}, fmt.Errorf("sweep: %w", err)
	}
	removed := report.Removed
	if removed == nil {
		removed = []string{}
	}
	return SweepResponse{Removed: removed, Kept: report.Kept, Failed: report.Failed}, nil
}
