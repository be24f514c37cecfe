// Command spacelens serves the disk-usage treemap engine over a JSON HTTP
// API. An external renderer drives scans, navigation, layout, and deletion
// through it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sqweek/dialog"
	"go.uber.org/zap"

	"spacelens/internal/lens"
	"spacelens/internal/platform"
	"spacelens/internal/scan"
	"spacelens/internal/treemap"
)

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	workers := flag.Int("workers", 0, "scan worker pool size (0 = NumCPU*4)")
	maxItems := flag.Int("max-items", treemap.DefaultMaxItems, "treemap item cap per directory")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	session := lens.NewSession(nil)
	session.SetMaxItems(*maxItems)

	srv := &server{
		log:     logger,
		session: session,
		workers: *workers,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/scan", srv.handleScan)
	mux.HandleFunc("/api/progress", srv.handleProgress)
	mux.HandleFunc("/api/cancel", srv.handleCancel)
	mux.HandleFunc("/api/tree", srv.handleTree)
	mux.HandleFunc("/api/layout", srv.handleLayout)
	mux.HandleFunc("/api/drill", srv.handleDrill)
	mux.HandleFunc("/api/up", srv.handleUp)
	mux.HandleFunc("/api/breadcrumbs", srv.handleBreadcrumbs)
	mux.HandleFunc("/api/delete", srv.handleDelete)
	mux.HandleFunc("/api/pick_folder", srv.handlePickFolder)
	mux.HandleFunc("/api/open", srv.handleOpen)
	mux.HandleFunc("/api/default_path", srv.handleDefaultPath)

	logger.Info("starting spacelens server", zap.String("addr", *addr))
	if err := http.ListenAndServe(*addr, srv.logRequests(mux)); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

type server struct {
	log     *zap.Logger
	session *lens.Session
	workers int

	mu       sync.Mutex
	scanPath string
	fraction float64
	lastPath string
	scanErr  string
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

// ==================
// Scan lifecycle
// ==================

func (s *server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Path == "" {
		writeErr(w, http.StatusBadRequest, "missing JSON body: {\"path\": \"...\"}")
		return
	}
	if s.session.State() == lens.Scanning {
		writeErr(w, http.StatusConflict, "a scan is already running")
		return
	}

	s.mu.Lock()
	s.scanPath = in.Path
	s.fraction = 0
	s.lastPath = ""
	s.scanErr = ""
	s.mu.Unlock()

	go s.runScan(in.Path)
	writeJSON(w, map[string]string{"status": "scanning", "path": in.Path}, http.StatusAccepted)
}

func (s *server) runScan(path string) {
	start := time.Now()
	tree, err := s.session.Scan(context.Background(), path, scan.DefaultProfile(), s.workers, s.onProgress)
	if err != nil {
		s.mu.Lock()
		s.scanErr = err.Error()
		s.mu.Unlock()
		var se *scan.ScanError
		if errors.As(err, &se) && se.Kind == scan.KindCancelled {
			s.log.Info("scan cancelled", zap.String("path", path))
			return
		}
		s.log.Warn("scan failed", zap.String("path", path), zap.Error(err))
		return
	}
	s.log.Info("scan complete",
		zap.String("path", path),
		zap.String("size", humanize.IBytes(uint64(tree.Root.Size))),
		zap.Int64("files", tree.Files),
		zap.Int64("dirs", tree.Dirs),
		zap.Int("skipped", tree.Skipped),
		zap.Duration("took", time.Since(start)))
}

func (s *server) onProgress(fraction float64, path string) {
	s.mu.Lock()
	s.fraction = fraction
	s.lastPath = path
	s.mu.Unlock()
}

func (s *server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := map[string]any{
		"state":    s.session.State().String(),
		"fraction": s.fraction,
		"path":     s.lastPath,
	}
	if s.scanErr != "" {
		resp["error"] = s.scanErr
	}
	s.mu.Unlock()
	writeJSON(w, resp, http.StatusOK)
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.session.Cancel()
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *server) handleTree(w http.ResponseWriter, r *http.Request) {
	tree := s.session.Tree()
	if tree == nil {
		writeErr(w, http.StatusNotFound, "no completed scan")
		return
	}
	resp := map[string]any{
		"root_id":    tree.Root.ID,
		"name":       tree.Root.Name,
		"path":       tree.Root.Path,
		"size":       tree.Root.Size,
		"size_human": humanize.IBytes(uint64(tree.Root.Size)),
		"files":      tree.Files,
		"dirs":       tree.Dirs,
		"skipped":    tree.Skipped,
	}
	s.mu.Lock()
	scanPath := s.scanPath
	s.mu.Unlock()
	if platform.Impl.IsMountRoot(scanPath) {
		if fs, err := disk.Usage(scanPath); err == nil {
			resp["disk_total"] = fs.Total
			resp["disk_free"] = fs.Free
		}
	}
	writeJSON(w, resp, http.StatusOK)
}

// ==================
// Navigation & layout
// ==================

// layoutItem pairs a rectangle with the child item it represents.
type layoutItem struct {
	treemap.Rect
	lens.Item
	SizeHuman string `json:"size_human"`
}

func (s *server) handleLayout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	width, errW := strconv.ParseFloat(q.Get("w"), 64)
	height, errH := strconv.ParseFloat(q.Get("h"), 64)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		writeErr(w, http.StatusBadRequest, "invalid w/h")
		return
	}

	var rects []treemap.Rect
	var items []lens.Item
	if idStr := q.Get("node"); idStr != "" {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid node id")
			return
		}
		rects, items, err = s.session.LayoutNode(id, width, height)
		if err != nil {
			writeErr(w, http.StatusNotFound, err.Error())
			return
		}
	} else {
		rects, items = s.session.Layout(width, height)
		if rects == nil && s.session.State() != lens.Browsing {
			writeErr(w, http.StatusNotFound, "no completed scan")
			return
		}
	}

	out := make([]layoutItem, len(rects))
	for i, rc := range rects {
		out[i] = layoutItem{
			Rect:      rc,
			Item:      items[i],
			SizeHuman: humanize.IBytes(uint64(items[i].Size)),
		}
	}
	writeJSON(w, map[string]any{"items": out}, http.StatusOK)
}

func (s *server) nodeFromBody(w http.ResponseWriter, r *http.Request) (*scan.Node, bool) {
	var in struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, http.StatusBadRequest, "missing JSON body: {\"id\": ...}")
		return nil, false
	}
	node := s.session.Tree().Node(in.ID)
	if node == nil {
		writeErr(w, http.StatusNotFound, "unknown node id")
		return nil, false
	}
	return node, true
}

func (s *server) handleDrill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	node, ok := s.nodeFromBody(w, r)
	if !ok {
		return
	}
	if err := s.session.DrillDown(node); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeBreadcrumbs(w)
}

func (s *server) handleUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.session.Up()
	s.writeBreadcrumbs(w)
}

func (s *server) handleBreadcrumbs(w http.ResponseWriter, r *http.Request) {
	s.writeBreadcrumbs(w)
}

func (s *server) writeBreadcrumbs(w http.ResponseWriter) {
	crumbs := s.session.Breadcrumbs()
	out := make([]map[string]any, len(crumbs))
	for i, c := range crumbs {
		out[i] = map[string]any{
			"id":   c.ID,
			"name": c.Name,
			"path": c.Path,
			"size": c.Size,
		}
	}
	writeJSON(w, map[string]any{"breadcrumbs": out}, http.StatusOK)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	node, ok := s.nodeFromBody(w, r)
	if !ok {
		return
	}
	if err := s.session.Delete(node); err != nil {
		var de *lens.DeleteError
		if errors.As(err, &de) {
			s.log.Warn("delete failed", zap.String("path", de.Path), zap.Error(de.Err))
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.Info("moved to trash",
		zap.String("path", node.Path),
		zap.String("size", humanize.IBytes(uint64(node.Size))))
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// ==================
// OS integration
// ==================

func (s *server) handlePickFolder(w http.ResponseWriter, r *http.Request) {
	path, err := dialog.Directory().Title("Select a folder").Browse()
	if err != nil {
		// User cancelled -> empty string
		writeJSON(w, map[string]string{"path": ""}, http.StatusOK)
		return
	}
	writeJSON(w, map[string]string{"path": path}, http.StatusOK)
}

func (s *server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var in struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Path == "" {
		writeErr(w, http.StatusBadRequest, "missing JSON body: {\"path\": \"...\"}")
		return
	}
	if err := platform.Impl.OpenInFileBrowser(in.Path); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *server) handleDefaultPath(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"path": platform.Impl.DefaultStartPath()}, http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, map[string]string{"error": msg}, status)
}
