package blobs

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// EnvironmentVariable holds a base64-encoded JSON Context for code running
// inside the platform.
const EnvironmentVariable = "NETLIFY_BLOBS_CONTEXT"

// Context is the set of credentials and routing information a store needs.
type Context struct {
	APIURL          string `json:"apiURL,omitempty"`
	DeployID        string `json:"deployID,omitempty"`
	EdgeURL         string `json:"edgeURL,omitempty"`
	PrimaryRegion   string `json:"primaryRegion,omitempty"`
	SiteID          string `json:"siteID,omitempty"`
	Token           string `json:"token,omitempty"`
	UncachedEdgeURL string `json:"uncachedEdgeURL,omitempty"`
}

func (c Context) usable() bool { return c.Token != "" && c.SiteID != "" }

// overlay returns c with every non-empty field of o written over it.
func (c Context) overlay(o Context) Context {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.APIURL, o.APIURL)
	set(&c.DeployID, o.DeployID)
	set(&c.EdgeURL, o.EdgeURL)
	set(&c.PrimaryRegion, o.PrimaryRegion)
	set(&c.SiteID, o.SiteID)
	set(&c.Token, o.Token)
	set(&c.UncachedEdgeURL, o.UncachedEdgeURL)
	return c
}

// EncodeContext returns the base64 JSON form used by EnvironmentVariable.
func EncodeContext(c Context) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal context: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeContext parses a value produced by EncodeContext.
func DecodeContext(encoded string) (Context, error) {
	var c Context
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return c, fmt.Errorf("decode context: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse context: %w", err)
	}
	return c, nil
}

// SetEnvironmentContext exposes c to nested invocations (child processes or
// function-to-function calls) through EnvironmentVariable.
func SetEnvironmentContext(c Context) error {
	encoded, err := EncodeContext(c)
	if err != nil {
		return err
	}
	return os.Setenv(EnvironmentVariable, encoded)
}

var (
	globalMu      sync.RWMutex
	globalContext string
)

// SetGlobalContext installs a process-wide encoded context, consulted when the
// environment variable is absent or incomplete. An empty value clears it.
func SetGlobalContext(encoded string) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalContext = encoded
}

// contextSource yields one layer of context. ok is false when the layer is
// absent or cannot be decoded.
type contextSource func() (c Context, ok bool)

func environmentSource() (Context, bool) {
	return decodeLayer(os.Getenv(EnvironmentVariable))
}

func globalSource() (Context, bool) {
	globalMu.RLock()
	encoded := globalContext
	globalMu.RUnlock()
	return decodeLayer(encoded)
}

func decodeLayer(encoded string) (Context, bool) {
	if encoded == "" {
		return Context{}, false
	}
	c, err := DecodeContext(encoded)
	if err != nil {
		return Context{}, false
	}
	return c, true
}

var defaultSources = []contextSource{environmentSource, globalSource}

// EnvironmentContext returns the first usable context found in the
// environment variable or the global slot.
func EnvironmentContext() (Context, bool) {
	c := firstUsable(defaultSources)
	return c, c.usable()
}

func firstUsable(sources []contextSource) Context {
	for _, src := range sources {
		if c, ok := src(); ok && c.usable() {
			return c
		}
	}
	return Context{}
}

// resolveContext picks the first usable layer whole, without mixing fields
// from different layers, then applies the explicit options on top.
func resolveContext(explicit Context, sources ...contextSource) (Context, error) {
	resolved := firstUsable(sources).overlay(explicit)
	if resolved.usable() {
		return resolved, nil
	}

	var missing []string
	if resolved.SiteID == "" {
		missing = append(missing, "siteID")
	}
	if resolved.Token == "" {
		missing = append(missing, "token")
	}
	return Context{}, fmt.Errorf("%w (missing %s)", ErrMissingEnvironment, strings.Join(missing, ", "))
}
