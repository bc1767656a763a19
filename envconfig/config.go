// Package envconfig - Konfiguration ueber Umgebungsvariablen
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host zurueck (LOKAL_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (LOKAL_ORIGINS)
// - LogLevel: Gibt Log-Level zurueck (LOKAL_DEBUG)
// - ContextLength: Nutzbare Kontextgroesse in Tokens (LOKAL_CONTEXT_LENGTH)
// - MaxSequences: Maximale Anzahl paralleler Sequenzen (LOKAL_MAX_SEQUENCES)
// - CropLabel: Boundary-Label fuer das Context-Cropping (LOKAL_CROP_LABEL)
// - Encoding: Name des BPE-Encodings fuer den Tokenizer (LOKAL_ENCODING)
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via LOKAL_HOST
// Default: http://127.0.0.1:11681
func Host() *url.URL {
	defaultPort := "11681"

	s := strings.TrimSpace(Var("LOKAL_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via LOKAL_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost
func AllowedOrigins() (origins []string) {
	if s := Var("LOKAL_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	origins = append(origins,
		"app://*",
		"file://*",
	)

	return origins
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via LOKAL_DEBUG (bool oder Zahl, negative Level sind feiner)
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("LOKAL_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// ContextLength gibt die nutzbare Kontextgroesse in Tokens zurueck
// Konfigurierbar via LOKAL_CONTEXT_LENGTH (default: 4096)
func ContextLength() uint {
	return Uint("LOKAL_CONTEXT_LENGTH", 4096)()
}

// MaxSequences gibt die maximale Anzahl gleichzeitiger Sequenzen zurueck
// Konfigurierbar via LOKAL_MAX_SEQUENCES (default: 4)
func MaxSequences() uint {
	return Uint("LOKAL_MAX_SEQUENCES", 4)()
}

// CropLabel gibt das Boundary-Label zurueck, das den Beginn eines
// Konversations-Turns markiert
// Konfigurierbar via LOKAL_CROP_LABEL (default: "<|im_start|>user")
func CropLabel() string {
	if s := Var("LOKAL_CROP_LABEL"); s != "" {
		return s
	}
	return "<|im_start|>user"
}

// Encoding gibt den Namen des BPE-Encodings zurueck
// Konfigurierbar via LOKAL_ENCODING (default: "cl100k_base")
func Encoding() string {
	if s := Var("LOKAL_ENCODING"); s != "" {
		return s
	}
	return "cl100k_base"
}

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	return func() bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// Var liest eine Umgebungsvariable und entfernt Anfuehrungszeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// EnvVar beschreibt eine Konfigurationsvariable fuer die CLI-Hilfe
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"LOKAL_DEBUG":          {"LOKAL_DEBUG", LogLevel(), "Show additional debug information (e.g. LOKAL_DEBUG=1)"},
		"LOKAL_HOST":           {"LOKAL_HOST", Host(), "IP Address for the lokal server (default 127.0.0.1:11681)"},
		"LOKAL_CONTEXT_LENGTH": {"LOKAL_CONTEXT_LENGTH", ContextLength(), "Usable context length in tokens (default: 4096)"},
		"LOKAL_MAX_SEQUENCES":  {"LOKAL_MAX_SEQUENCES", MaxSequences(), "Maximum number of concurrent sequences (default: 4)"},
		"LOKAL_CROP_LABEL":     {"LOKAL_CROP_LABEL", CropLabel(), "Token sequence marking the start of a conversation turn"},
		"LOKAL_ENCODING":       {"LOKAL_ENCODING", Encoding(), "BPE encoding used by the tokenizer (default: cl100k_base)"},
		"LOKAL_ORIGINS":        {"LOKAL_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
