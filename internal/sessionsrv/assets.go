package sessionsrv

import (
	"bytes"
	"compress/gzip"
	"io/fs"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// gzippable lists the extensions that are worth compressing; binary image
// formats are served as-is.
var gzippable = map[string]bool{
	".html": true,
	".js":   true,
	".css":  true,
	".json": true,
	".svg":  true,
}

var extraMimeTypes = map[string]string{
	".js":   "text/javascript; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".svg":  "image/svg+xml",
	".json": "application/json",
	".png":  "image/png",
	".ico":  "image/x-icon",
	".html": "text/html; charset=utf-8",
}

// assetServer serves the bundled browser terminal assets out of an
// fs.FS, gzip-compressing eligible responses and caching the compressed
// payload in memory keyed by absolute path so repeated requests don't
// re-compress.
type assetServer struct {
	root fs.FS

	mu    sync.Mutex
	cache map[string][]byte
}

func newAssetServer(root fs.FS) *assetServer {
	return &assetServer{root: root, cache: make(map[string][]byte)}
}

func (a *assetServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	if p == "/" {
		p = "/index.html"
	}
	p = strings.TrimPrefix(p, "/")

	data, err := fs.ReadFile(a.root, p)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	ext := filepath.Ext(p)
	contentType, ok := extraMimeTypes[ext]
	if !ok {
		contentType = mime.TypeByExtension(ext)
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	if gzippable[ext] && strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		compressed := a.compressed(p, data)
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Length", strconv.Itoa(len(compressed)))
		w.Write(compressed)
		return
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (a *assetServer) compressed(path string, data []byte) []byte {
	a.mu.Lock()
	if cached, ok := a.cache[path]; ok {
		a.mu.Unlock()
		return cached
	}
	a.mu.Unlock()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write(data)
	gz.Close()
	compressed := buf.Bytes()

	a.mu.Lock()
	a.cache[path] = compressed
	a.mu.Unlock()

	return compressed
}
