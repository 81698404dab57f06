package endpoints

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/examtile/examtile/internal/analyze"
	"github.com/examtile/examtile/internal/api"
	"github.com/examtile/examtile/internal/config"
	"github.com/examtile/examtile/internal/ingest"
	"github.com/examtile/examtile/internal/sink"
	"github.com/examtile/examtile/internal/svcctx"
)

// multipartOverhead is allowed on top of the upload limit for form framing
// and the small text fields.
const multipartOverhead = 1 << 20

// AnalyzeEndpoint handles POST /api/analyze.
type AnalyzeEndpoint struct{}

func (e *AnalyzeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/analyze", e.handler
}

func (e *AnalyzeEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Analyze an exam PDF
//	@Description	Splits every page into tiles, sends each tile to the configured model and streams results as newline-delimited JSON events (start, tile, page, error, done). Problems found before the stream starts are returned as JSON errors.
//	@Tags			analyze
//	@Accept			multipart/form-data
//	@Produce		application/x-ndjson
//	@Param			file	formData	file	true	"PDF document"
//	@Param			mode	formData	string	false	"Tiling mode: quarter or half"
//	@Param			dpi		formData	int		false	"Rasterization resolution"
//	@Success		200		{object}	sink.Event
//	@Failure		400		{object}	ErrorResponse
//	@Failure		413		{object}	ErrorResponse
//	@Failure		422		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/analyze [post]
func (e *AnalyzeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	analyzer := svcctx.AnalyzerFrom(r.Context())
	if analyzer == nil {
		writeError(w, http.StatusInternalServerError, "analyzer not available")
		return
	}
	logger := svcctx.LoggerFrom(r.Context())
	if logger == nil {
		logger = slog.Default()
	}

	limit := int64(analyzer.Config().Server.MaxUploadMB) << 20
	if limit > 0 && r.ContentLength > limit+multipartOverhead {
		writeError(w, http.StatusRequestEntityTooLarge, ingest.ErrTooLarge.Error())
		return
	}
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ingest.ErrTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "file required: "+err.Error())
		return
	}
	defer file.Close()

	data, err := ingest.ReadAll(file, limit)
	if err != nil {
		if errors.Is(err, ingest.ErrTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := analyze.Request{
		Data:  data,
		Title: ingest.Title(header.Filename),
		Mode:  r.FormValue("mode"),
	}
	if v := r.FormValue("dpi"); v != "" {
		dpi, err := strconv.Atoi(v)
		if err != nil || dpi <= 0 {
			writeError(w, http.StatusBadRequest, "dpi must be a positive integer")
			return
		}
		if err := config.ValidateDPI(dpi); err != nil {
			writeKindError(w, http.StatusBadRequest, sink.KindConfiguration, err)
			return
		}
		req.DPI = dpi
	}

	run, err := analyzer.Prepare(r.Context(), req)
	if err != nil {
		var cerr *config.ConfigurationError
		var rerr *ingest.RasterizationError
		switch {
		case errors.As(err, &cerr):
			writeKindError(w, http.StatusServiceUnavailable, sink.KindConfiguration, err)
		case errors.As(err, &rerr):
			writeKindError(w, http.StatusUnprocessableEntity, sink.KindRasterization, err)
		default:
			writeKindError(w, http.StatusInternalServerError, sink.Classify(err), err)
		}
		return
	}

	// Streams last as long as the document takes.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug("write deadline not cleared", "error", err)
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Run-ID", run.ID)
	w.WriteHeader(http.StatusOK)

	stream := sink.NewNDJSON(w)
	if err := stream.Start(run.ID, run.Pages); err != nil {
		run.Close()
		logger.Warn("client went away", "run_id", run.ID, "error", err)
		return
	}
	sum, err := run.Execute(r.Context(), stream)
	if err != nil {
		logger.Warn("run ended early", "run_id", run.ID, "kind", sink.Classify(err), "error", err)
		return
	}
	logger.Info("run finished", "run_id", run.ID, "tiles", sum.Tiles, "failed", sum.Failed, "elapsed", sum.Elapsed)
}

func (e *AnalyzeEndpoint) Command(getServerURL func() string) *cobra.Command {
	var mode string
	var dpi int
	var raw bool
	cmd := &cobra.Command{
		Use:   "analyze <file.pdf>",
		Short: "Analyze an exam PDF on the server",
		Long: `Upload a PDF to the server and print each tile's answer as it arrives.

With --raw the server's event stream is printed as newline-delimited JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			upload := api.Upload{
				Filename: filepath.Base(args[0]),
				Data:     data,
				Fields:   map[string]string{},
			}
			if mode != "" {
				upload.Fields["mode"] = mode
			}
			if dpi > 0 {
				upload.Fields["dpi"] = strconv.Itoa(dpi)
			}

			out := cmd.OutOrStdout()
			var stream *sink.NDJSON
			var replay *sink.Replayer
			if raw {
				stream = sink.NewNDJSON(out)
			} else {
				replay = sink.NewReplayer(sink.NewMarkdown(out, ingest.Title(args[0])))
			}

			var runErr error
			client := api.NewClient(getServerURL())
			err = client.Stream(cmd.Context(), "/api/analyze", upload, func(ev sink.Event) error {
				if stream == nil {
					return replay.Apply(cmd.Context(), ev)
				}
				if ev.Type == sink.EventError {
					runErr = &sink.StreamError{Kind: ev.Kind, Message: ev.Error}
				}
				return stream.Write(ev)
			})
			if err != nil {
				return err
			}
			if replay != nil {
				runErr = replay.Err()
			}
			if runErr != nil {
				return fmt.Errorf("run stopped (%s): %w", sink.Classify(runErr), runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Tiling mode: quarter or half (default from server config)")
	cmd.Flags().IntVar(&dpi, "dpi", 0, "Rasterization resolution (default from server config)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the raw NDJSON event stream")
	return cmd
}
