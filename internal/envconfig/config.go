package envconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrInvalidHostPort = errors.New("invalid port specified in DEX_HOST")

var (
	// Set via DEX_LIBRARY in the environment
	Library string
	// Set via DEX_LIBRARY_PATH in the environment
	LibraryPath []string
	// Set via DEX_DEBUG in the environment
	Debug bool
	// Set via DEX_HOST in the environment
	Host string
	// Set via DEX_PRELUDE in the environment
	Prelude string
	// Set via DEX_NUM_PARALLEL in the environment
	NumParallel int
	// Set via DEX_SERIALIZE in the environment
	Serialize bool
)

const defaultPort = "8080"

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"DEX_LIBRARY":      {"DEX_LIBRARY", Library, "Path to the libDex shared library"},
		"DEX_LIBRARY_PATH": {"DEX_LIBRARY_PATH", LibraryPath, "Extra directories searched for libDex"},
		"DEX_DEBUG":        {"DEX_DEBUG", Debug, "Show additional debug information (e.g. DEX_DEBUG=1)"},
		"DEX_HOST":         {"DEX_HOST", Host, "Listen address for dexgo serve (default 127.0.0.1:8080)"},
		"DEX_PRELUDE":      {"DEX_PRELUDE", Prelude, "Dex source file evaluated into every session"},
		"DEX_NUM_PARALLEL": {"DEX_NUM_PARALLEL", NumParallel, "Default number of parallel evaluations (default GOMAXPROCS)"},
		"DEX_SERIALIZE":    {"DEX_SERIALIZE", Serialize, "Issue native calls one at a time (default true)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

func LoadConfig() {
	Library = clean("DEX_LIBRARY")

	LibraryPath = nil
	if paths := clean("DEX_LIBRARY_PATH"); paths != "" {
		for _, p := range filepath.SplitList(paths) {
			if p != "" {
				LibraryPath = append(LibraryPath, p)
			}
		}
	}

	Debug = false
	if debug := clean("DEX_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	Host = clean("DEX_HOST")
	Prelude = clean("DEX_PRELUDE")

	NumParallel = 0
	if onp := clean("DEX_NUM_PARALLEL"); onp != "" {
		val, err := strconv.Atoi(onp)
		if err != nil || val <= 0 {
			slog.Error("invalid setting must be greater than zero", "DEX_NUM_PARALLEL", onp, "error", err)
		} else {
			NumParallel = val
		}
	}

	Serialize = true
	if s := clean("DEX_SERIALIZE"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			slog.Error("invalid setting, ignoring", "DEX_SERIALIZE", s, "error", err)
		} else {
			Serialize = v
		}
	}
}

// ListenAddr normalizes DEX_HOST into a host:port pair.
func ListenAddr() (string, error) {
	host, port := "127.0.0.1", defaultPort
	if Host != "" {
		h, p, err := net.SplitHostPort(Host)
		if err != nil {
			// no port given
			h, p = strings.Trim(Host, "[]"), defaultPort
		}
		host, port = h, p
	}

	n, err := strconv.ParseInt(port, 10, 32)
	if err != nil || n > 65535 || n < 0 {
		return "", ErrInvalidHostPort
	}
	return net.JoinHostPort(host, port), nil
}
