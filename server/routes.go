// Package server - Haupt-Router und Server-Setup fuer Lokal
// Beinhaltet: Server-Struct, Router-Registrierung, Middleware, Server-Start
package server

import (
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/image/webp"

	"github.com/lokal-ai/lokal/envconfig"
	"github.com/lokal-ai/lokal/kvcache"
	"github.com/lokal-ai/lokal/logutil"
	"github.com/lokal-ai/lokal/runner/dialogrunner"
	"github.com/lokal-ai/lokal/template"
	"github.com/lokal-ai/lokal/tokenizer"
	"github.com/lokal-ai/lokal/version"
)

var mode string = gin.DebugMode

// Server verwaltet den HTTP-Server und den Dialog-Runner
type Server struct {
	addr   net.Addr
	runner *dialogrunner.Server
	sched  *kvcache.Scheduler
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// isLocalIP prueft ob die IP-Adresse zu einem lokalen Interface gehoert
func isLocalIP(ip netip.Addr) bool {
	if interfaces, err := net.Interfaces(); err == nil {
		for _, iface := range interfaces {
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}

			for _, a := range addrs {
				if parsed, _, err := net.ParseCIDR(a.String()); err == nil {
					if parsed.String() == ip.String() {
						return true
					}
				}
			}
		}
	}

	return false
}

// allowedHost prueft ob der Host erlaubt ist
func allowedHost(host string) bool {
	host = strings.ToLower(host)

	if host == "" || host == "localhost" {
		return true
	}

	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}

	tlds := []string{
		"localhost",
		"local",
		"internal",
	}

	// Pruefe ob der Host eine lokale TLD hat
	for _, tld := range tlds {
		if strings.HasSuffix(host, "."+tld) {
			return true
		}
	}

	return false
}

// allowedHostsMiddleware blockiert Anfragen von nicht erlaubten Hosts
func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}

		if addr, err := netip.ParseAddrPort(addr.String()); err == nil && !addr.Addr().IsLoopback() {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}

		if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || isLocalIP(addr) {
				c.Next()
				return
			}
		}

		if allowedHost(host) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}

			c.Next()
			return
		}

		c.AbortWithStatus(http.StatusForbidden)
	}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() (http.Handler, error) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
		requestIDMiddleware(),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "Lokal is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Lokal is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Dialog
	r.POST("/api/dialog", s.DialogHandler)
	r.POST("/api/dialog/stop", s.StopHandler)

	// Modal-Puffer
	r.POST("/api/buffers", s.CreateBufferHandler)
	r.DELETE("/api/buffers/:handle", s.DeleteBufferHandler)

	return r, nil
}

// Serve startet den HTTP-Server und den Dialog-Runner
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	// register the experimental webp decoder
	// so webp images can be used in multimodal inputs
	image.RegisterFormat("webp", "RIFF????WEBP", webp.Decode, webp.DecodeConfig)

	tmpl, err := template.Named("qwen")
	if err != nil {
		return err
	}

	numCtx := int32(envconfig.ContextLength())
	sched := kvcache.NewScheduler(int(numCtx))

	runner, err := dialogrunner.NewServer(dialogrunner.Options{
		Text:         tokenizer.New(envconfig.Encoding()),
		Scheduler:    sched,
		Template:     tmpl,
		NumCtx:       numCtx,
		CropLabel:    envconfig.CropLabel(),
		MaxSequences: int64(envconfig.MaxSequences()),
	})
	if err != nil {
		return err
	}

	s := &Server{addr: ln.Addr(), runner: runner, sched: sched}
	h, err := s.GenerateRoutes()
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{Handler: h}

	// listen for a ctrl+c and stop the runner
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
		sched.Close()
	}()

	if err := srvr.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}
