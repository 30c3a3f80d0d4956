package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"profitdash/internal/amqp"
	"profitdash/internal/analytics"
	"profitdash/internal/core"
	"profitdash/internal/ingest"
	"profitdash/internal/log"
	"profitdash/internal/metrics"
)

// uploadResult is the JSON answer to an API upload.
type uploadResult struct {
	UploadID     string            `json:"uploadId"`
	FileName     string            `json:"fileName"`
	Format       string            `json:"format"`
	Sheet        string            `json:"sheet,omitempty"`
	ProductCount int               `json:"productCount"`
	BlankRows    int               `json:"blankRows"`
	Summary      analytics.Summary `json:"summary"`
}

// handleUpload parses a spreadsheet and makes it the user's product list.
// A rejected file leaves the previous list untouched.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := currentUser(r)
	logger := log.FromContext(ctx).WithComponent(log.ComponentIngest)

	req, err := parseUploadRequest(w, r, s.opts.UploadMaxBytes)
	if err != nil {
		status, msg := s.uploadRequestError(err)
		s.metrics.RecordUpload(metrics.UploadRejected, "", 0)
		logger.InfoContext(ctx, "Upload rejected", log.FieldError, err, log.FieldOperation, log.OpUpload)
		s.fail(w, r, status, msg)
		return
	}
	defer req.Close()

	start := time.Now()
	res, err := ingest.Parse(ctx, req.FileName, req.File, ingest.Options{MaxRows: s.opts.UploadMaxRows})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		status := uploadStatus(err)
		outcome := metrics.UploadRejected
		if status == http.StatusInternalServerError {
			outcome = metrics.UploadFailed
			logger.ErrorContext(ctx, "Upload processing failed",
				log.FieldError, err,
				log.FieldFileName, req.FileName,
				log.FieldOperation, log.OpParse)
		} else {
			logger.InfoContext(ctx, "Upload rejected",
				log.FieldError, err,
				log.FieldFileName, req.FileName,
				log.FieldFormat, string(res.Format),
				log.FieldOperation, log.OpParse)
		}
		s.metrics.RecordUpload(outcome, string(res.Format), 0)
		s.fail(w, r, status, ingest.Message(err))
		return
	}

	snap := core.Snapshot{
		UserID:     user.ID,
		UploadID:   uuid.NewString(),
		FileName:   req.FileName,
		UploadedAt: time.Now().UTC(),
		Products:   res.Products,
	}
	if err := s.products.Replace(ctx, snap); err != nil {
		s.metrics.RecordUpload(metrics.UploadFailed, string(res.Format), 0)
		log.FromContext(ctx).WithComponent(log.ComponentStorage).ErrorContext(ctx, "Failed to store products",
			log.FieldError, err,
			log.FieldUploadID, snap.UploadID,
			log.FieldOperation, log.OpReplace)
		s.fail(w, r, http.StatusInternalServerError, "Could not save your products. Please try again.")
		return
	}

	s.metrics.RecordUpload(metrics.UploadOK, string(res.Format), len(snap.Products))
	log.NewStructuredLogger(logger).LogProductsReplaced(ctx, user.ID, snap.UploadID, snap.FileName, req.Size, len(snap.Products))
	logger.DebugContext(ctx, "Upload parsed",
		log.FieldUploadID, snap.UploadID,
		log.FieldFormat, string(res.Format),
		"sheet", res.Sheet,
		"blank_rows", res.BlankRows,
		log.FieldDuration, time.Since(start).Milliseconds())

	s.publishUploaded(ctx, snap)

	switch {
	case wantsJSON(r):
		s.writeJSON(w, r, http.StatusCreated, uploadResult{
			UploadID:     snap.UploadID,
			FileName:     snap.FileName,
			Format:       string(res.Format),
			Sheet:        res.Sheet,
			ProductCount: len(snap.Products),
			BlankRows:    res.BlankRows,
			Summary:      s.reporter.Report(snap).Summary,
		})
	case isHTMX(r):
		b := NewHTMXResponse().
			TriggerProductsReplaced(snap.UploadID, len(snap.Products)).
			PushURL("/?tab=" + tabDashboard)
		s.respond(w, r, b, "tab_content", page{Tab: tabDashboard, Data: s.dashboardData(snap)})
	default:
		http.Redirect(w, r, "/?tab="+tabDashboard, http.StatusSeeOther)
	}
}

// publishUploaded announces the upload. It outlives a disconnecting client
// and never fails the request.
func (s *Server) publishUploaded(ctx context.Context, snap core.Snapshot) {
	if s.events == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := s.events.PublishProductsUploaded(pctx, amqp.NewProductsUploadedMessage(snap))
	s.metrics.EventPublished(err)
	if err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentAMQP).WarnContext(ctx, "Failed to publish upload event",
			log.FieldError, err,
			log.FieldUploadID, snap.UploadID)
	}
}

func (s *Server) uploadRequestError(err error) (int, string) {
	switch {
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge, fmt.Sprintf("The file is too large (maximum %d MB)", s.maxUploadMB())
	case errors.Is(err, errNoFile):
		return http.StatusBadRequest, "Please choose a file to upload"
	default:
		return http.StatusBadRequest, "The upload could not be read"
	}
}

// uploadStatus maps an ingestion error to the HTTP status returned for it.
func uploadStatus(err error) int {
	var missing *ingest.MissingColumnsError
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &missing),
		errors.Is(err, ingest.ErrEmptySheet),
		errors.Is(err, ingest.ErrTooManyRows),
		errors.Is(err, ingest.ErrUnreadable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) maxUploadMB() int64 {
	return (s.opts.UploadMaxBytes + 1<<20 - 1) >> 20
}
