package server

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-cli/internal/layout"
	"github.com/sells-group/claims-cli/internal/model"
	"github.com/sells-group/claims-cli/internal/monitoring"
	"github.com/sells-group/claims-cli/internal/pipeline"
	"github.com/sells-group/claims-cli/internal/progress"
	"github.com/sells-group/claims-cli/internal/prompt"
	"github.com/sells-group/claims-cli/internal/report"
)

// previewLimit caps the text returned by preview endpoints.
const previewLimit = 2000

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	body := map[string]any{"status": "ok"}
	if s.deps.Breakers != nil {
		body["breakers"] = s.deps.Breakers.States()
	}
	writeJSON(w, http.StatusOK, body)
	return nil
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) error {
	counts, err := s.deps.Store.Counts(r.Context())
	if err != nil {
		return err
	}
	if s.deps.Monitor == nil {
		writeJSON(w, http.StatusOK, counts)
		return nil
	}
	writeJSON(w, http.StatusOK, struct {
		*model.Counts
		Window *monitoring.MetricsSnapshot `json:"window"`
	}{counts, s.deps.Monitor.Snapshot()})
	return nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) error {
	snap, err := report.Collect(r.Context(), s.deps.Store, report.Options{
		EventID:      r.URL.Query().Get("event"),
		AllDocuments: r.URL.Query().Get("all") == "true",
	})
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="claims-audit.xlsx"`)
	if err := report.WriteXLSX(w, snap); err != nil {
		zap.L().Error("server: write export", zap.Error(err))
	}
	return nil
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) error {
	folders, err := s.deps.Layout.Events()
	if err != nil {
		return err
	}
	indexed, err := s.deps.Store.ListEvents(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders, "indexed": indexed})
	return nil
}

// eventID returns the validated event identifier from the URL.
func eventID(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "eventID")
	id := strings.TrimSpace(raw)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", errBadRequest("invalid event id %q", raw)
	}
	return id, nil
}

// eventFolder returns the folder named by the URL and its normalized
// identifier. The folder keeps the identifier's surrounding whitespace so
// that such folders are found on disk.
func (s *Server) eventFolder(r *http.Request) (root, id string, err error) {
	id, err = eventID(r)
	if err != nil {
		return "", "", err
	}
	return s.deps.Layout.EventRoot(chi.URLParam(r, "eventID")), id, nil
}

// fileName validates a bare file name supplied by the client.
func fileName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", errBadRequest("invalid file name %q", name)
	}
	return name, nil
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) error {
	root, _, err := s.eventFolder(r)
	if err != nil {
		return err
	}
	listing, err := s.deps.Layout.ListAt(root)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, listing)
	return nil
}

func (s *Server) handleListPDFs(w http.ResponseWriter, r *http.Request) error {
	root, _, err := s.eventFolder(r)
	if err != nil {
		return err
	}
	listing, err := s.deps.Layout.ListAt(root)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string][]string{
		string(model.CategorySensitive): listing.SensitivePDF,
		string(model.CategoryGeneral):   listing.GeneralPDF,
	})
	return nil
}

// parseCategory accepts a category name or its input folder name.
func (s *Server) parseCategory(v string) (model.Category, error) {
	switch v {
	case "", string(model.CategorySensitive), s.deps.Layout.SensitiveFolder:
		return model.CategorySensitive, nil
	case string(model.CategoryGeneral), s.deps.Layout.GeneralFolder:
		return model.CategoryGeneral, nil
	}
	return "", errBadRequest("unknown category %q", v)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) error {
	root, id, err := s.eventFolder(r)
	if err != nil {
		return err
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		return errBadRequest("invalid multipart form: %v", err)
	}
	cat, err := s.parseCategory(r.FormValue("category"))
	if err != nil {
		return err
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		return errBadRequest("missing file: %v", err)
	}
	defer file.Close() //nolint:errcheck

	name, err := fileName(filepath.Base(hdr.Filename))
	if err != nil {
		return err
	}
	if !layout.IsPDF(name) {
		return errBadRequest("only PDF files are accepted")
	}

	dir := s.deps.Layout.InputDir(root, cat)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "server: create %s", dir)
	}
	dest := filepath.Join(dir, name)
	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "server: create %s", dest)
	}
	n, err := io.Copy(out, file)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest) //nolint:errcheck
		return eris.Wrapf(err, "server: write %s", dest)
	}

	zap.L().Info("server: document uploaded",
		zap.String("event_id", id),
		zap.String("category", string(cat)),
		zap.String("file", name),
		zap.Int64("bytes", n),
	)
	writeJSON(w, http.StatusCreated, map[string]any{
		"event_id": id,
		"category": cat,
		"filename": name,
		"bytes":    n,
	})
	return nil
}

// requestSink collects a request's progress messages and mirrors them to
// the log.
func requestSink() (*progress.Recorder, progress.Sink) {
	rec := progress.NewRecorder()
	return rec, progress.Multi{rec, progress.NewLogger(zap.L())}
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) error {
	root, id, err := s.eventFolder(r)
	if err != nil {
		return err
	}
	rec, sink := requestSink()
	rep, err := s.deps.NewProcessor(sink).ProcessEvent(r.Context(), root)
	s.observe(id, rep, err)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": rep, "messages": rec.Lines()})
	return nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) error {
	id, err := eventID(r)
	if err != nil {
		return err
	}
	rec, sink := requestSink()
	out, err := s.deps.NewAnalyzer(sink).AnalyzeEvent(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"analysis": out, "messages": rec.Lines()})
	return nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) error {
	root, id, err := s.eventFolder(r)
	if err != nil {
		return err
	}
	rec, sink := requestSink()
	runner := pipeline.NewRunner(s.deps.NewProcessor(sink), s.deps.NewAnalyzer(sink), sink)
	rep, err := runner.Run(r.Context(), root)
	s.observe(id, rep, err)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": rep, "messages": rec.Lines()})
	return nil
}

type fileRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
	Prompt   string `json:"prompt"`
}

func truncatePreview(s string) string {
	r := []rune(s)
	if len(r) <= previewLimit {
		return s
	}
	return string(r[:previewLimit])
}

// handleOCRPreview extracts text from one uploaded PDF, looking in the
// general folder first.
func (s *Server) handleOCRPreview(w http.ResponseWriter, r *http.Request) error {
	root, id, err := s.eventFolder(r)
	if err != nil {
		return err
	}
	var req fileRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	name, err := fileName(req.Filename)
	if err != nil {
		return err
	}

	var path string
	for _, cat := range []model.Category{model.CategoryGeneral, model.CategorySensitive} {
		candidate := filepath.Join(s.deps.Layout.InputDir(root, cat), name)
		if _, statErr := os.Stat(candidate); statErr == nil {
			path = candidate
			break
		}
	}
	if path == "" {
		return errNotFound("document %s not found in event %s", name, id)
	}

	text, err := s.deps.NewProcessor(nil).Preview(r.Context(), path)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"text_preview": truncatePreview(text)})
	return nil
}

// handleAnonymizePreview redacts the supplied text, or the raw snapshot of
// the named document.
func (s *Server) handleAnonymizePreview(w http.ResponseWriter, r *http.Request) error {
	id, err := eventID(r)
	if err != nil {
		return err
	}
	var req fileRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	text := req.Text
	if text == "" {
		name, err := fileName(req.Filename)
		if err != nil {
			return errBadRequest("either text or filename is required")
		}
		data, err := os.ReadFile(filepath.Join(s.deps.Layout.RawEventDir(id), layout.TextName(name)))
		if os.IsNotExist(err) {
			return errNotFound("raw snapshot of %s not found in event %s", name, id)
		}
		if err != nil {
			return eris.Wrap(err, "server: read raw snapshot")
		}
		text = string(data)
	}

	redacted, err := s.deps.NewProcessor(nil).PreviewRedaction(r.Context(), text)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"anonymized_preview": truncatePreview(redacted)})
	return nil
}

func (s *Server) handleAnalyzeSingle(w http.ResponseWriter, r *http.Request) error {
	id, err := eventID(r)
	if err != nil {
		return err
	}
	var req fileRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	name, err := fileName(req.Filename)
	if err != nil {
		return err
	}
	out, err := s.deps.NewAnalyzer(nil).AnalyzeDocument(r.Context(), id, name, req.Prompt)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"result_preview": truncatePreview(out.Text), "model": out.Model})
	return nil
}

func (s *Server) handleAnalyzePreview(w http.ResponseWriter, r *http.Request) error {
	id, err := eventID(r)
	if err != nil {
		return err
	}
	var req fileRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	rec, sink := requestSink()
	out, err := s.deps.NewAnalyzer(sink).Preview(r.Context(), id, req.Prompt)
	if err != nil {
		return err
	}
	if out == nil {
		writeJSON(w, http.StatusOK, map[string]any{"result_preview": "", "messages": rec.Lines()})
		return nil
	}
	writeJSON(w, http.StatusOK, map[string]any{"result_preview": truncatePreview(out.Text), "model": out.Model})
	return nil
}

func (s *Server) handleLatestAnalysis(w http.ResponseWriter, r *http.Request) error {
	id, err := eventID(r)
	if err != nil {
		return err
	}
	res, err := s.deps.Store.LatestAnalysis(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) error {
	id, err := eventID(r)
	if err != nil {
		return err
	}
	name, err := fileName(chi.URLParam(r, "filename"))
	if err != nil {
		return err
	}
	cmp, err := s.corpus.Compare(id, name)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, cmp)
	return nil
}

func promptID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "promptID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadRequest("invalid prompt id %q", raw)
	}
	return id, nil
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) error {
	ps, err := s.deps.Prompts.List(r.Context())
	if err != nil {
		return err
	}
	if ps == nil {
		ps = []model.PromptTemplate{}
	}
	writeJSON(w, http.StatusOK, ps)
	return nil
}

func (s *Server) handleActivePrompt(w http.ResponseWriter, r *http.Request) error {
	res := s.deps.Prompts.Resolve(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"prompt":   res.Prompt,
		"model":    res.Model,
		"template": res.Template,
	})
	return nil
}

func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) error {
	var in prompt.Input
	if err := decodeJSON(r, &in); err != nil {
		return err
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Content) == "" {
		return errBadRequest("name and content are required")
	}
	p, err := s.deps.Prompts.Create(r.Context(), in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, p)
	return nil
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) error {
	id, err := promptID(r)
	if err != nil {
		return err
	}
	var in prompt.Input
	if err := decodeJSON(r, &in); err != nil {
		return err
	}
	p, err := s.deps.Prompts.Update(r.Context(), id, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, p)
	return nil
}

func (s *Server) handleActivatePrompt(w http.ResponseWriter, r *http.Request) error {
	id, err := promptID(r)
	if err != nil {
		return err
	}
	if err := s.deps.Prompts.Activate(r.Context(), id); err != nil {
		return err
	}
	p, err := s.deps.Prompts.Get(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, p)
	return nil
}

func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) error {
	id, err := promptID(r)
	if err != nil {
		return err
	}
	if err := s.deps.Prompts.Delete(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
