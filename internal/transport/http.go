package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"golang.org/x/text/language"

	"docgen/internal/htmlbody"
	"docgen/internal/logging"
	"docgen/internal/pipeline"
	"docgen/sink/buffer"
	"docgen/sink/httpstream"
)

// MaxInputBytes bounds the body of a render request.
const MaxInputBytes = 32 << 20

// NewHTTPServer serves NewHandler on port.
func NewHTTPServer(port int, docs Documents, stream bool) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewHandler(docs, stream),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewHandler routes
//
//	POST /documents/{name}?language=&transform=&fragment=&ignore_script=
//	GET  /documents
//
// The POST body is the input document, JSON when the Content-Type says so,
// of at most MaxInputBytes.
// With stream set the document is written to the client as it is
// generated; a failure after the first byte can then only cut the
// response short.
//
// fragment=true answers an HTML document with only its body and styles,
// ready to embed in another page; each ignore_script drops the scripts whose
// URL contains it.
func NewHandler(docs Documents, stream bool) http.Handler {
	h := &httpHandler{docs: docs, stream: stream, maxInput: MaxInputBytes}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /documents/{name}", h.render)
	mux.HandleFunc("GET /documents", h.list)
	return mux
}

type httpHandler struct {
	docs     Documents
	stream   bool
	maxInput int64
}

func (h *httpHandler) render(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	g, ok := h.docs.Generator(name)
	if !ok {
		h.fail(w, name, unknownDocumentError{name})
		return
	}
	transform, err := boolParam(r, "transform", true)
	if err != nil {
		h.fail(w, name, errBadTransform)
		return
	}
	fragment, err := boolParam(r, "fragment", false)
	if err != nil {
		h.fail(w, name, errBadFragment)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxInput))
	if err != nil {
		h.fail(w, name, err)
		return
	}
	input, err := pipeline.ParseInput(r.Header.Get("Content-Type"), bytes.NewReader(body))
	if err != nil {
		h.fail(w, name, err)
		return
	}
	lang := requestLanguage(r)

	if fragment {
		h.renderFragment(w, r, g, name, input, transform, lang)
		return
	}
	if h.stream {
		dest := httpstream.New(w)
		if err := g.Render(r.Context(), dest, input, transform, nil, lang); err != nil {
			if dest.Started() {
				logging.L().Error("transport: streamed render failed", "document", name, "err", err)
				return
			}
			h.fail(w, name, err)
		}
		return
	}

	dest := buffer.New()
	if err := g.Render(r.Context(), dest, input, transform, nil, lang); err != nil {
		h.fail(w, name, err)
		return
	}
	if err := dest.Deliver(w, http.StatusOK); err != nil {
		logging.L().Debug("transport: response not delivered", "document", name, "err", err)
	}
}

func (h *httpHandler) renderFragment(w http.ResponseWriter, r *http.Request, g *pipeline.Generator, name string, input *etree.Document, transform bool, lang string) {
	dest := buffer.New()
	if err := g.Render(r.Context(), dest, input, transform, nil, lang); err != nil {
		h.fail(w, name, err)
		return
	}
	page, err := dest.Text()
	if err != nil {
		h.fail(w, name, err)
		return
	}
	x := &htmlbody.Extractor{}
	for _, s := range r.URL.Query()["ignore_script"] {
		x.IgnoreScript(s)
	}
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	if _, err := io.WriteString(w, x.Extract(page)); err != nil {
		logging.L().Debug("transport: response not delivered", "document", name, "err", err)
	}
}

func boolParam(r *http.Request, key string, def bool) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

func (h *httpHandler) fail(w http.ResponseWriter, name string, err error) {
	_, code := classify(err)
	logging.L().Warn("transport: http render failed", "document", name, "status", code, "err", err)
	http.Error(w, err.Error(), code)
}

type documentStatus struct {
	Name    string `json:"name"`
	Valid   bool   `json:"valid"`
	Problem string `json:"problem,omitempty"`
}

func (h *httpHandler) list(w http.ResponseWriter, _ *http.Request) {
	out := make([]documentStatus, 0, len(h.docs.Names()))
	for _, name := range h.docs.Names() {
		st := documentStatus{Name: name, Valid: true}
		if g, ok := h.docs.Generator(name); ok {
			if err := g.AssertTemplateValid(); err != nil {
				st.Valid, st.Problem = false, err.Error()
			}
		}
		out = append(out, st)
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	_ = json.NewEncoder(w).Encode(out)
}

// requestLanguage is the language query parameter or else the preferred
// Accept-Language tag.
func requestLanguage(r *http.Request) string {
	if l := r.URL.Query().Get("language"); l != "" {
		return l
	}
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return ""
	}
	return tags[0].String()
}
