package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/bcromer77/prooftimelines/internal/domain"
	"github.com/bcromer77/prooftimelines/internal/infra/bundles"
	"github.com/bcromer77/prooftimelines/internal/usecase"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// multipartOverhead is the room left for headers and boundaries on top of
// the configured upload limit.
const multipartOverhead = 1 << 20

type createCaseRequest struct {
	Title string `json:"title"`
}

type createEventRequest struct {
	Date       string `json:"date"`
	Title      string `json:"title"`
	Note       string `json:"note"`
	SourceType string `json:"source_type"`
	SourceRef  string `json:"source_ref"`
}

type ingestResponse struct {
	EvidenceID string               `json:"evidence_id"`
	CaseID     string               `json:"case_id"`
	SHA256     string               `json:"sha256"`
	CapturedAt string               `json:"captured_at"`
	Filename   string               `json:"filename"`
	MimeType   string               `json:"mime_type"`
	ByteLength int64                `json:"byte_length"`
	StorageRef string               `json:"storage_ref"`
	EventID    *string              `json:"event_id"`
	Ledger     bundles.LedgerTriple `json:"ledger"`
}

type summaryResponse struct {
	CaseID         string  `json:"case_id"`
	EventCount     int     `json:"event_count"`
	EvidenceCount  int     `json:"evidence_count"`
	FirstEventDate *string `json:"first_event_date"`
	LastEventDate  *string `json:"last_event_date"`
	HeadSequence   int64   `json:"head_sequence"`
	HeadHash       string  `json:"head_hash"`
}

type chainResponse struct {
	Valid        bool   `json:"valid"`
	Entries      int    `json:"entries"`
	HeadSequence int64  `json:"head_sequence"`
	HeadHash     string `json:"head_hash"`
	Error        string `json:"error,omitempty"`
}

func (s *Server) handleCreateCase(c *gin.Context) {
	var req createCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	created, err := s.cases.CreateCase(c.Request.Context(), userID(c), req.Title)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"case_id": created.ID})
}

func (s *Server) handleListCases(c *gin.Context) {
	cases, err := s.cases.ListCases(c.Request.Context(), userID(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	out := make([]bundles.CaseView, 0, len(cases))
	for _, item := range cases {
		out = append(out, bundles.CaseFromDomain(item))
	}
	c.JSON(http.StatusOK, gin.H{"cases": out})
}

func (s *Server) handleGetCase(c *gin.Context) {
	caseID, ok := ParseUUIDParam(c, "id", "INVALID_CASE_ID")
	if !ok {
		return
	}
	found, err := s.cases.GetCase(c.Request.Context(), userID(c), caseID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundles.CaseFromDomain(found))
}

func (s *Server) handleCreateEvent(c *gin.Context) {
	caseID, ok := ParseUUIDParam(c, "id", "INVALID_CASE_ID")
	if !ok {
		return
	}
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	event, err := s.cases.CreateEvent(c.Request.Context(), usecase.CreateEventInput{
		CaseID:     caseID,
		UserID:     userID(c),
		Date:       req.Date,
		Title:      req.Title,
		Note:       req.Note,
		SourceType: req.SourceType,
		SourceRef:  req.SourceRef,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event_id": event.ID})
}

func (s *Server) handleListEvents(c *gin.Context) {
	caseID, ok := ParseUUIDParam(c, "id", "INVALID_CASE_ID")
	if !ok {
		return
	}
	events, err := s.cases.ListEvents(c.Request.Context(), userID(c), caseID)
	if err != nil {
		WriteError(c, err)
		return
	}
	out := make([]bundles.EventView, 0, len(events))
	for _, e := range events {
		out = append(out, bundles.EventFromDomain(e))
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func (s *Server) handleIngest(c *gin.Context) {
	caseID, ok := ParseUUIDParam(c, "id", "INVALID_CASE_ID")
	if !ok {
		return
	}
	maxBytes := s.cfg.MaxUploadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeUploadViolation(c, "FILE_TOO_LARGE", "file exceeds the upload limit")
			return
		}
		writeUploadViolation(c, "MISSING_FILE", "multipart field \"file\" is required")
		return
	}

	var eventID string
	if raw := strings.TrimSpace(c.PostForm("event_id")); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_EVENT_ID", "event_id must be a UUID")
			return
		}
		eventID = parsed.String()
	}

	file, err := header.Open()
	if err != nil {
		writeUploadViolation(c, "UNREADABLE_FILE", "uploaded file could not be read")
		return
	}
	defer file.Close()
	// one byte past the limit lets the policy see the overflow
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		writeUploadViolation(c, "UNREADABLE_FILE", "uploaded file could not be read")
		return
	}

	result, err := s.writer.Ingest(c.Request.Context(), usecase.IngestInput{
		CaseID:   caseID,
		UserID:   userID(c),
		EventID:  eventID,
		Filename: header.Filename,
		MimeType: uploadMimeType(header.Header.Get("Content-Type"), data),
		Data:     data,
	})
	if err != nil {
		WriteError(c, err)
		return
	}

	ev := result.Evidence
	resp := ingestResponse{
		EvidenceID: ev.ID,
		CaseID:     ev.CaseID,
		SHA256:     ev.SHA256,
		CapturedAt: result.Ledger.CapturedAt,
		Filename:   ev.Filename,
		MimeType:   ev.MimeType,
		ByteLength: ev.ByteLength,
		StorageRef: ev.StorageRef,
		Ledger: bundles.LedgerTriple{
			SequenceNumber: result.Ledger.SequenceNumber,
			PrevHash:       result.Ledger.PrevHash,
			Hash:           result.Ledger.Hash,
		},
	}
	if ev.EventID != "" {
		resp.EventID = &ev.EventID
	}
	c.JSON(http.StatusCreated, resp)
}

// uploadMimeType prefers the part's declared type and sniffs the content
// when the client sent none or the generic binary type.
func uploadMimeType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != domain.DefaultMimeType {
		return declared
	}
	if len(data) == 0 {
		return domain.DefaultMimeType
	}
	detected := mimetype.Detect(data).String()
	if base, _, err := mime.ParseMediaType(detected); err == nil {
		return base
	}
	return domain.DefaultMimeType
}

func writeUploadViolation(c *gin.Context, code, message string) {
	writeErrorBody(c, http.StatusBadRequest, errorResponse{
		Code:    "INVALID_UPLOAD",
		Message: message,
		Details: map[string]any{
			"violations": []domain.PolicyViolation{{Code: code, Message: message}},
		},
	})
}

func (s *Server) handleEvidenceContent(c *gin.Context) {
	caseID, ok := ParseUUIDParam(c, "id", "INVALID_CASE_ID")
	if !ok {
		return
	}
	evidenceID, ok := ParseUUIDParam(c, "evidence_id", "INVALID_EVIDENCE_ID")
	if !ok {
		return
	}
	item, data, err := s.reader.Content(c.Request.Context(), userID(c), caseID, evidenceID)
	if err != nil {
		WriteError(c, err)
		return
	}
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": item.Filename}); disposition != "" {
		c.Header("Content-Disposition", disposition)
	}
	c.Header("X-Content-SHA256", item.SHA256)
	c.Data(http.StatusOK, item.MimeType, data)
}

func (s *Server) handleTimeline(c *gin.Context) {
	caseID, ok := ParseUUIDParam(c, "id", "INVALID_CASE_ID")
	if !ok {
		return
	}
	filter, err := usecase.ParseTimelineRange(c.Query("from"), c.Query("to"))
	if err != nil {
		WriteError(c, err)
		return
	}
	timeline, err := s.reader.BuildTimeline(c.Request.Context(), userID(c), caseID, filter)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundles.TimelineFromDomain(timeline))
}

func (s *Server) handleExport(c *gin.Context) {
	caseID, ok := ParseUUIDParam(c, "id", "INVALID_CASE_ID")
	if !ok {
		return
	}
	export, err := s.reader.BuildExport(c.Request.Context(), userID(c), caseID)
	if err != nil {
		WriteError(c, err)
		return
	}
	bundle, err := bundles.FromExport(export)
	if err != nil {
		WriteError(c, err)
		return
	}
	body, err := bundles.Marshal(bundle)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.Header("X-Export-Digest", bundle.Digest)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": "case-" + caseID + "-export.json",
	}))
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (s *Server) handleSummary(c *gin.Context) {
	caseID, ok := ParseUUIDParam(c, "id", "INVALID_CASE_ID")
	if !ok {
		return
	}
	summary, err := s.reader.Summary(c.Request.Context(), userID(c), caseID)
	if err != nil {
		WriteError(c, err)
		return
	}
	resp := summaryResponse{
		CaseID:        summary.CaseID,
		EventCount:    summary.EventCount,
		EvidenceCount: summary.EvidenceCount,
		HeadSequence:  summary.HeadSequence,
		HeadHash:      summary.HeadHash,
	}
	if summary.FirstEventDate != nil {
		first := summary.FirstEventDate.UTC().Format(time.RFC3339)
		resp.FirstEventDate = &first
	}
	if summary.LastEventDate != nil {
		last := summary.LastEventDate.UTC().Format(time.RFC3339)
		resp.LastEventDate = &last
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleVerifyLedger(c *gin.Context) {
	caseID, ok := ParseUUIDParam(c, "id", "INVALID_CASE_ID")
	if !ok {
		return
	}
	report, err := s.reader.VerifyCaseChain(c.Request.Context(), userID(c), caseID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, chainResponse{
		Valid:        report.Valid,
		Entries:      report.Entries,
		HeadSequence: report.HeadSequence,
		HeadHash:     report.HeadHash,
		Error:        report.Error,
	})
}
