package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// AssetManifestFileName is the inventory of static assets referenced by the
// tool, written into the assets directory of the working directory.
const AssetManifestFileName = "assets.json"

// AssetDirName is the subdirectory holding the asset inventory.
const AssetDirName = "assets"

// assetExtensions are the file extensions treated as static assets when
// scanning the schema and theme for references.
var assetExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".webp": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".css": true, ".js": true,
	".mp4": true, ".webm": true, ".pdf": true,
}

// AssetRef is one static asset referenced by the tool.
type AssetRef struct {
	URL    string `json:"url"`
	Domain string `json:"domain,omitempty"`
	Local  bool   `json:"local"`
}

// AssetManifest groups the tool's asset references for the deployment
// package. External assets are grouped by registrable domain so operators
// can review which third parties a deployed tool will fetch from.
type AssetManifest struct {
	Assets    []AssetRef          `json:"assets"`
	ByDomain  map[string][]string `json:"by_domain,omitempty"`
	LocalOnly bool                `json:"local_only"`
}

// BundleAssetsStep scans the serialized schema and theme for static asset
// references and writes an inventory into the working directory. The export
// never fetches remote assets; deployment environments are expected to be
// able to reach them, and the manifest makes that dependency explicit.
func BundleAssetsStep() Step {
	return StepFunc{
		StepName: "bundle static assets",
		Fn: func(ctx context.Context, sc *StepContext) error {
			refs := collectAssetRefs(sc)

			manifest := buildAssetManifest(refs)

			assetDir := filepath.Join(sc.WorkDir, AssetDirName)
			if err := os.MkdirAll(assetDir, 0o755); err != nil {
				return fmt.Errorf("create asset dir: %w", err)
			}

			encoded, err := json.MarshalIndent(manifest, "", "  ")
			if err != nil {
				return fmt.Errorf("encode asset manifest: %w", err)
			}
			if err := os.WriteFile(filepath.Join(assetDir, AssetManifestFileName), encoded, workDirFileMode); err != nil {
				return fmt.Errorf("write asset manifest: %w", err)
			}

			sc.Logger.DebugContext(ctx, "bundled asset inventory",
				"job_id", sc.JobID,
				"asset_count", len(manifest.Assets),
				"external_domains", len(manifest.ByDomain),
			)
			return nil
		},
	}
}

func collectAssetRefs(sc *StepContext) []string {
	seen := map[string]bool{}
	var refs []string

	appendRefs := func(raw json.RawMessage) {
		var decoded any
		if len(raw) == 0 || json.Unmarshal(raw, &decoded) != nil {
			return
		}
		walkStrings(decoded, func(s string) {
			if looksLikeAsset(s) && !seen[s] {
				seen[s] = true
				refs = append(refs, s)
			}
		})
	}

	appendRefs(sc.Snapshot.Schema)
	appendRefs(sc.Snapshot.Theme)

	sort.Strings(refs)
	return refs
}

// walkStrings visits every string value in a decoded JSON document.
func walkStrings(v any, visit func(string)) {
	switch t := v.(type) {
	case string:
		visit(t)
	case []any:
		for _, item := range t {
			walkStrings(item, visit)
		}
	case map[string]any:
		for _, item := range t {
			walkStrings(item, visit)
		}
	}
}

func looksLikeAsset(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \n\t") {
		return false
	}
	candidate := s
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		candidate = u.Path
	}
	return assetExtensions[strings.ToLower(path.Ext(candidate))]
}

func buildAssetManifest(refs []string) AssetManifest {
	manifest := AssetManifest{
		Assets:    make([]AssetRef, 0, len(refs)),
		LocalOnly: true,
	}

	for _, ref := range refs {
		asset := AssetRef{URL: ref, Local: true}
		if host := externalHost(ref); host != "" {
			asset.Local = false
			asset.Domain = registrableDomain(host)
			manifest.LocalOnly = false
			if manifest.ByDomain == nil {
				manifest.ByDomain = map[string][]string{}
			}
			manifest.ByDomain[asset.Domain] = append(manifest.ByDomain[asset.Domain], ref)
		}
		manifest.Assets = append(manifest.Assets, asset)
	}

	return manifest
}

func externalHost(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.Hostname()
}

// registrableDomain reduces a hostname to its eTLD+1 so assets served from
// sibling subdomains group under one entry. Hosts the public suffix list
// cannot resolve (IPs, internal names) fall back to the raw host.
func registrableDomain(host string) string {
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
