package api

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"credit-prediction/internal/common/config"
	"credit-prediction/internal/common/errors"
	"credit-prediction/internal/common/validation"
	"credit-prediction/internal/store"
)

const defaultUploadName = "upload.csv"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady is 200 when at least one kind can serve.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Ready: s.store.LoadedCount() > 0, Models: s.store.Status()}
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = s.store.DefaultKind(s.schemaKind)
	}
	if !store.ValidKind(kind) {
		s.writeError(w, r, "schema", errors.NewInvalidModeError("schema", kind))
		return
	}
	sc, err := s.store.Schema(kind)
	if err != nil {
		s.writeError(w, r, "schema", errors.NewSchemaEmptyError("schema", kind))
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	m, err := s.reporter.Meta(r.Context())
	if err != nil {
		s.writeError(w, r, "meta", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleGlobalImportance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := q.Get("kind")
	if kind == "" {
		kind = s.store.DefaultKind(s.schemaKind)
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, "global-importance",
				errors.NewInvalidPayloadError("global-importance", fmt.Sprintf("limit: %q is not a positive integer", raw)))
			return
		}
		limit = n
	}

	features, err := s.reporter.GlobalImportance(kind, limit)
	if err != nil {
		s.writeError(w, r, "global-importance", err)
		return
	}
	writeJSON(w, http.StatusOK, GlobalImportanceResponse{Kind: kind, Features: features})
}

func (s *Server) handlePredict(kind string) http.HandlerFunc {
	operation := "predict/" + kind
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeEnvelope(http.MaxBytesReader(w, r.Body, maxPredictBody), operation)
		if err != nil {
			s.writeError(w, r, operation, err)
			return
		}

		res, err := s.inference.Predict(r.Context(), kind, payload)
		if err != nil {
			s.writeError(w, r, operation, err)
			return
		}

		if res.Kind == config.KindRegression {
			writeJSON(w, http.StatusOK, RegressionResponse{
				ModelName:            res.ModelName,
				PredictedCreditLimit: res.Value,
				RuntimeMS:            res.RuntimeMS,
			})
			return
		}
		writeJSON(w, http.StatusOK, ClassificationResponse{
			ModelName:     res.ModelName,
			PredictedTier: res.Label,
			Proba:         res.Probabilities,
			RuntimeMS:     res.RuntimeMS,
		})
	}
}

// decodeEnvelope parses and validates {"payload": {...}}.
func decodeEnvelope(body io.Reader, operation string) (map[string]interface{}, error) {
	var doc interface{}
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return nil, errors.NewPayloadTooLargeError(tooLarge.Limit).WithOperation(operation)
		}
		return nil, errors.NewInvalidPayloadError(operation, "body: "+err.Error())
	}
	if err := dec.Decode(&struct{}{}); !stderrors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return nil, errors.NewPayloadTooLargeError(tooLarge.Limit).WithOperation(operation)
		}
		return nil, errors.NewInvalidPayloadError(operation, "body: unexpected data after the JSON object")
	}

	result, err := validation.ValidatePredictionEnvelope(doc)
	if err != nil {
		return nil, errors.NewInternalError(operation, err)
	}
	if !result.Valid {
		return nil, errors.NewInvalidPayloadError(operation, strings.Join(result.GetErrorMessages(), "; "))
	}

	payload, _ := doc.(map[string]interface{})["payload"].(map[string]interface{})
	return payload, nil
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	const operation = "predict/batch"

	mode := r.URL.Query().Get("mode")
	if !store.ValidKind(mode) {
		s.writeError(w, r, operation, errors.NewInvalidModeError(operation, mode))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	data, name, err := readUpload(r)
	if err != nil {
		s.writeError(w, r, operation, err)
		return
	}

	var out bytes.Buffer
	if _, err := s.batch.Score(r.Context(), mode, bytes.NewReader(data), &out); err != nil {
		s.writeError(w, r, operation, err)
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": "scored_" + name})
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(out.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = out.WriteTo(w)
}

// readUpload returns the uploaded table: the "file" part of a multipart form,
// or the raw request body otherwise.
func readUpload(r *http.Request) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", uploadError(err)
		}
		return data, uploadName(r.URL.Query().Get("filename")), nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", errors.NewUnreadableFileError(err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, "", errors.NewUnreadableFileError(fmt.Errorf(`multipart form has no "file" field`))
		}
		if err != nil {
			return nil, "", uploadError(err)
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, "", uploadError(err)
		}
		return data, uploadName(part.FileName()), nil
	}
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return errors.NewPayloadTooLargeError(tooLarge.Limit)
	}
	return errors.NewUnreadableFileError(err)
}

func uploadName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return defaultUploadName
	}
	return name
}
