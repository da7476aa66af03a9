package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/entrybook/syncgw/internal/attachment"
	"github.com/entrybook/syncgw/internal/gateway"
	"github.com/entrybook/syncgw/internal/gateway/query"
)

// requestFrom builds a gateway request for path from r's account
// parameters and caller header.
func requestFrom(r *http.Request, path string) gateway.Request {
	q := r.URL.Query()
	syncAdapter, _ := strconv.ParseBool(q.Get("sync_adapter"))
	return gateway.Request{
		Path:        path,
		SyncAdapter: syncAdapter,
		AccountName: q.Get("account_name"),
		AccountType: q.Get("account_type"),
		Caller:      r.Header.Get(CallerHeader),
	}
}

func resourcePath(r *http.Request) string {
	if id := r.PathValue("id"); id != "" {
		return r.PathValue("entity") + "/" + id
	}
	return r.PathValue("entity")
}

// filterFrom reads selection, arg, projection and sort parameters.
func filterFrom(r *http.Request) query.Filter {
	q := r.URL.Query()
	f := query.Filter{
		Selection: q.Get("selection"),
		SortOrder: q.Get("sort"),
	}
	for _, a := range q["arg"] {
		f.Args = append(f.Args, a)
	}
	for _, p := range q["projection"] {
		for _, c := range strings.Split(p, ",") {
			if c = strings.TrimSpace(c); c != "" {
				f.Projection = append(f.Projection, c)
			}
		}
	}
	return f
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidRequest, err)
	}
	return bytes.TrimSpace(body), nil
}

func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", gateway.ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	rows, err := s.gw.Query(r.Context(), requestFrom(r, resourcePath(r)), filterFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rows == nil {
		rows = []gateway.Row{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

// handleInsert accepts one object or an array of objects.
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	req := requestFrom(r, resourcePath(r))

	if bytes.HasPrefix(body, []byte("[")) {
		var raws []map[string]any
		if err := decode(body, &raws); err != nil {
			s.writeError(w, err)
			return
		}
		ids, err := s.gw.BulkInsert(r.Context(), req, raws)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"ids": ids})
		return
	}

	var raw map[string]any
	if err := decode(body, &raw); err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.gw.Insert(r.Context(), req, raw)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if id == 0 {
		writeJSON(w, http.StatusConflict, map[string]any{"id": nil, "error": "row skipped: constraint violation"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

type updateBody struct {
	Values    map[string]any `json:"values"`
	Selection string         `json:"selection"`
	Args      []any          `json:"args"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var in updateBody
	if err := decode(body, &in); err != nil {
		s.writeError(w, err)
		return
	}
	for i, a := range in.Args {
		if n, ok := a.(json.Number); ok {
			in.Args[i] = n.String()
		}
	}

	n, err := s.gw.Update(r.Context(), requestFrom(r, resourcePath(r)), in.Values, query.Filter{
		Selection: in.Selection,
		Args:      in.Args,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	n, err := s.gw.Delete(r.Context(), requestFrom(r, resourcePath(r)), filterFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	ids, err := s.gw.ResolveRelated(r.Context(), requestFrom(r, "relatedto/"+r.PathValue("id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (s *Server) handleAttachmentRead(w http.ResponseWriter, r *http.Request) {
	f, err := s.gw.OpenAttachment(r.Context(), requestFrom(r, "attachment/"+r.PathValue("id")), false)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer f.Close()
	serveFile(w, r, f)
}

func (s *Server) handleAttachmentWrite(w http.ResponseWriter, r *http.Request) {
	f, err := s.gw.OpenAttachment(r.Context(), requestFrom(r, "attachment/"+r.PathValue("id")), true)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.replaceContent(w, r, f)
}

// grantedURI returns the managed URI of the backing file named in r when
// the caller holds a live grant for it.
func (s *Server) grantedURI(r *http.Request) (string, error) {
	uri := s.gw.Files().URI(r.PathValue("name"))
	if _, err := s.gw.Files().FileName(uri); err != nil {
		return "", fmt.Errorf("%w: %v", gateway.ErrNotFound, err)
	}
	if !s.gw.Grants().Allowed(r.Header.Get(CallerHeader), uri) {
		return "", fmt.Errorf("%w: no grant for %s", gateway.ErrUnauthorizedCaller, uri)
	}
	return uri, nil
}

func (s *Server) openGranted(r *http.Request, writable bool) (*os.File, error) {
	uri, err := s.grantedURI(r)
	if err != nil {
		return nil, err
	}
	f, err := s.gw.Files().Open(uri, writable)
	if errors.Is(err, attachment.ErrNoBackingFile) {
		return nil, fmt.Errorf("%w: %v", gateway.ErrNotFound, err)
	}
	return f, err
}

func (s *Server) handleFileRead(w http.ResponseWriter, r *http.Request) {
	f, err := s.openGranted(r, false)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer f.Close()
	serveFile(w, r, f)
}

func (s *Server) handleFileWrite(w http.ResponseWriter, r *http.Request) {
	f, err := s.openGranted(r, true)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.replaceContent(w, r, f)
}

func serveFile(w http.ResponseWriter, r *http.Request, f *os.File) {
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// replaceContent overwrites f with the request body and closes it.
func (s *Server) replaceContent(w http.ResponseWriter, r *http.Request, f *os.File) {
	defer f.Close()

	if err := f.Truncate(0); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", gateway.ErrIOFailure, err))
		return
	}
	n, err := io.Copy(f, http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", gateway.ErrInvalidRequest, err))
		return
	}
	if err := f.Sync(); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", gateway.ErrIOFailure, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"size": n})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.NotFound(w, r)
		return
	}
	req := requestFrom(r, "")
	if err := s.gw.Authorize(req); err != nil {
		s.writeError(w, err)
		return
	}
	s.hub.Accept(w, r, req.Account())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": clients,
	})
}
