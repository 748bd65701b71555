package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/render"
	"github.com/urfave/negroni"

	"github.com/cplane-io/tinyxs/kv/store"
)

type statusInfo struct {
	Sessions   int            `json:"sessions"`
	RootGen    uint64         `json:"root_generation"`
	CommitSeq  uint64         `json:"commit_seq"`
	OwnedNodes map[uint32]int `json:"owned_nodes"`
}

type statusHandler struct {
	svr *Server
	rd  *render.Render
}

func newStatusHandler(svr *Server, rd *render.Render) *statusHandler {
	return &statusHandler{
		svr: svr,
		rd:  rd,
	}
}

func (h *statusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.svr.mu.Lock()
	sessions := len(h.svr.sessions)
	h.svr.mu.Unlock()

	info := statusInfo{
		Sessions:   sessions,
		RootGen:    uint64(h.svr.committer.Live().Root()),
		OwnedNodes: h.svr.committer.Live().OwnedNodes(),
	}
	if h.svr.plog != nil {
		seq, err := h.svr.plog.Seq()
		if err != nil {
			h.rd.JSON(w, http.StatusInternalServerError, err.Error())
			return
		}
		info.CommitSeq = seq
	}
	h.rd.JSON(w, http.StatusOK, info)
}

type dumpHandler struct {
	svr *Server
	rd  *render.Render
}

func newDumpHandler(svr *Server, rd *render.Render) *dumpHandler {
	return &dumpHandler{
		svr: svr,
		rd:  rd,
	}
}

// HandleDump walks the whole live tree with control-domain credentials and
// returns it as a path-to-value map. Debug surface only.
func (h *dumpHandler) HandleDump(w http.ResponseWriter, r *http.Request) {
	live := h.svr.committer.Live()
	cred := store.Cred{Dom: 0}
	out := make(map[string]string)
	var walk func(path string) error
	walk = func(path string) error {
		val, err := live.Read(cred, path)
		if err != nil {
			return err
		}
		out[path] = string(val)
		names, err := live.Ls(cred, path)
		if err != nil {
			return err
		}
		for _, name := range names {
			child := path + "/" + name
			if path == "/" {
				child = "/" + name
			}
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk("/"); err != nil {
		h.rd.JSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.rd.JSON(w, http.StatusOK, out)
}

// StatusHandler returns the HTTP status and debug surface of the server:
// /status, /dump and /metrics. This is operator tooling; it is not the
// client wire protocol.
func (s *Server) StatusHandler() http.Handler {
	rd := render.New(render.Options{
		IndentJSON: true,
	})

	router := mux.NewRouter()
	statusH := newStatusHandler(s, rd)
	router.HandleFunc("/status", statusH.HandleStatus).Methods("GET")
	dumpH := newDumpHandler(s, rd)
	router.HandleFunc("/dump", dumpH.HandleDump).Methods("GET")
	router.Handle("/metrics", promhttp.Handler())

	n := negroni.New(negroni.NewRecovery())
	n.UseHandler(router)
	return n
}
