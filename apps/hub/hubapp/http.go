package hubapp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lobinuxsoft/capydeploy/pkg/steamgriddb"
)

// ServeHTTP runs the Hub's local HTTP surface — cached artwork and
// Prometheus metrics — until ctx is cancelled. Intended to run in its own
// goroutine alongside Run.
func (s *Service) ServeHTTP(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/cache/", http.StripPrefix("/cache/", cacheHandler{}))
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("hub http server: %w", err)
		}
		return nil
	}
}

// cacheHandler serves cached artwork images directly from disk, avoiding
// the memory and bandwidth cost of base64-encoding large animated WebP/GIF
// artwork for every request.
type cacheHandler struct{}

func (cacheHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(r.URL.Path, "/", 2)
	if len(parts) != 2 || strings.Contains(parts[1], "..") || strings.Contains(parts[1], "/") {
		http.Error(w, "invalid cache path", http.StatusBadRequest)
		return
	}
	gameIDStr, filename := parts[0], parts[1]

	gameID, err := strconv.Atoi(gameIDStr)
	if err != nil {
		http.Error(w, "invalid game id", http.StatusBadRequest)
		return
	}

	cacheDir, err := steamgriddb.GetGameCacheDir(gameID)
	if err != nil {
		http.Error(w, "cache not available", http.StatusInternalServerError)
		return
	}

	filePath := filepath.Join(cacheDir, filename)
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	absCacheDir, _ := filepath.Abs(cacheDir)
	if absPath != absCacheDir && !strings.HasPrefix(absPath, absCacheDir+string(filepath.Separator)) {
		http.Error(w, "access denied", http.StatusForbidden)
		return
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "not found", http.StatusNotFound)
		} else {
			http.Error(w, "error reading file", http.StatusInternalServerError)
		}
		return
	}
	defer file.Close()

	contentType := "image/jpeg"
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		contentType = "image/png"
	case ".webp":
		contentType = "image/webp"
	case ".gif":
		contentType = "image/gif"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	io.Copy(w, file)
}

// LocalIPs returns the Hub's non-loopback IPv4 addresses, for display.
func LocalIPs() []string {
	var ips []string
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ips
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}
		ips = append(ips, ip4.String())
	}
	return ips
}
