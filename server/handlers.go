package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/xhad/courseqa/internal/models"
	"github.com/xhad/courseqa/pkg/image"
)

const (
	CodeInvalidRequest = "invalid_request"
	CodeInvalidImage   = "invalid_image"
	CodeQueryFailed    = "query_failed"
)

type queryRequest struct {
	Question string  `json:"question"`
	Image    *string `json:"image,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Points  int64  `json:"points,omitempty"`
}

// requestError is a validation failure reported as 400 invalid_request.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...interface{}) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q, err := s.decodeQuery(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	answer, err := s.answerer.Answer(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewParsedAnswer(answer.Answer, answer.Links))
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (models.Query, error) {
	// Base64 text is the largest legal payload; leave room for the question and
	// multipart framing.
	limit := int64(s.config.MaxImageChars) + int64(s.config.MaxQuestionChars)*4 + 64<<10
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return s.decodeMultipart(r, limit)
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return models.Query{}, badRequest("request body exceeds %d bytes", tooLarge.Limit)
		}
		return models.Query{}, badRequest("invalid JSON body: %v", err)
	}
	return s.buildQuery(req.Question, req.Image)
}

func (s *Server) decodeMultipart(r *http.Request, limit int64) (models.Query, error) {
	if err := r.ParseMultipartForm(limit); err != nil {
		return models.Query{}, badRequest("invalid multipart form: %v", err)
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		var img *string
		if v := r.FormValue("image"); v != "" {
			img = &v
		}
		return s.buildQuery(r.FormValue("question"), img)
	case err != nil:
		return models.Query{}, badRequest("invalid image upload: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return models.Query{}, badRequest("failed to read image upload: %v", err)
	}
	q, err := s.buildQuery(r.FormValue("question"), nil)
	if err != nil {
		return models.Query{}, err
	}
	in := image.FromUpload(data, header.Header.Get("Content-Type"))
	q.Image = &in
	return q, nil
}

// buildQuery validates the fields shared by every transport. Image strings are
// URLs or base64; local paths are not reachable from the network.
func (s *Server) buildQuery(question string, img *string) (models.Query, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Query{}, badRequest("question is required")
	}
	if n := utf8.RuneCountInString(question); n > s.config.MaxQuestionChars {
		return models.Query{}, badRequest("question is %d characters, the limit is %d", n, s.config.MaxQuestionChars)
	}

	q := models.Query{Question: question}
	if img == nil || strings.TrimSpace(*img) == "" {
		return q, nil
	}
	if len(*img) > s.config.MaxImageChars {
		return models.Query{}, badRequest("image is %d characters, the limit is %d", len(*img), s.config.MaxImageChars)
	}
	in := image.Classify(*img)
	if in.Kind == image.KindPath {
		in = image.FromBase64(in.Value)
	}
	q.Image = &in
	return q, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.HealthTimeout)
	defer cancel()

	n, err := s.index.Count(ctx)
	if err != nil {
		s.log.Warn("health check failed", "request_id", requestID(r.Context()), "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		Message: fmt.Sprintf("index reachable with %d points", n),
		Points:  n,
	})
}

// classify maps an error to its HTTP status and envelope.
func classify(err error) (int, errorBody) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest, errorBody{Message: reqErr.msg, Code: CodeInvalidRequest}
	}
	var imgErr *image.Error
	if errors.As(err, &imgErr) {
		return http.StatusBadRequest, errorBody{Message: imgErr.Error(), Code: CodeInvalidImage, Reason: string(imgErr.Code)}
	}
	return http.StatusInternalServerError, internalError()
}

// internalError hides the cause from the client; it is only logged.
func internalError() errorBody {
	return errorBody{
		Message: "An error occurred while processing your query.",
		Code:    CodeQueryFailed,
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("query failed", "request_id", requestID(r.Context()), "error", err)
	} else {
		s.log.Debug("rejected query", "request_id", requestID(r.Context()), "code", body.Code, "error", err)
	}
	writeJSON(w, status, errorEnvelope{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
