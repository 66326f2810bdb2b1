package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OperationKind distinguishes the three operation variants a target's
// sequence is built from.
type OperationKind string

const (
	KindEnsure OperationKind = "ensure"
	KindAction OperationKind = "action"
	KindVerify OperationKind = "verify"
)

// When is the execution discipline carried by an action operation.
type When string

const (
	WhenAlways When = "always"
	WhenOnce   When = "once"
	WhenNever  When = "never"
)

// Operation is one step of a target's ordered list. Only the fields
// relevant to its Kind/SubKind are populated; the rest are zero.
type Operation struct {
	Kind   OperationKind
	Name   string // required for action and verify; derived for ensure
	Config map[string]any

	// ensure
	EnsureKind string // "swap" | "docker" | "directory"

	// action
	ActionKind  string // "sync" | "command"
	When        When
	Source      string
	Destination string
	Exclude     []string
	Run         string

	// verify
	VerifyKind string // "http" | "command"
	URL        string
	Timeout    time.Duration
}

// EnsureKey returns the deterministic lock key for an ensure operation
// (spec §4.4: "swap", "docker", "directory_<path>").
func (o *Operation) EnsureKey() string {
	if o.EnsureKind == "directory" {
		return "directory_" + fmt.Sprint(o.Config["path"])
	}
	return o.EnsureKind
}

// OnceKey returns the lock identifier for a `once` action.
func (o *Operation) OnceKey() string {
	return "action_" + o.Name
}

// Target is one named deployment target.
type Target struct {
	Name       string
	Type       string // "ssh" or "local"
	Host       string
	User       string
	KeyPath    string
	Port       int
	DeployPath string
	Operations []Operation
}

// IsLocal reports whether this target uses the local shell strategy
// (spec §4.4: `type: local`, or absence of `host`).
func (t *Target) IsLocal() bool {
	if t.Type != "" {
		return t.Type == "local"
	}
	return t.Host == ""
}

// Manifest is the parsed, interpolated pod.deploy.yml document.
type Manifest struct {
	Name    string
	Version string
	Targets map[string]*Target
}

var interpolationToken = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolate replaces every ${key} occurrence in s using ctx, leaving
// unknown keys untouched. It is a single, non-recursive pass: substituted
// text is never rescanned for further tokens (spec §9 Design Notes).
func interpolate(s string, ctx map[string]string) string {
	return interpolationToken.ReplaceAllStringFunc(s, func(match string) string {
		key := match[2 : len(match)-1]
		if v, ok := ctx[key]; ok {
			return v
		}
		return match
	})
}

// interpolateTree walks a decoded YAML value (map/slice/scalar) and
// interpolates every string leaf in place, returning a new tree.
func interpolateTree(v any, ctx map[string]string) any {
	switch t := v.(type) {
	case string:
		return interpolate(t, ctx)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = interpolateTree(vv, ctx)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = interpolateTree(vv, ctx)
		}
		return out
	default:
		return v
	}
}

// expandPath tilde-expands p against the user's home directory and, if the
// result is not absolute, resolves it against the current working
// directory (spec §4.4).
func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, p), nil
}

// ParseManifest decodes and interpolates a pod.deploy.yml document.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ManifestError{Reason: fmt.Sprintf("invalid yaml: %v", err)}
	}

	name, _ := raw["name"].(string)
	version, _ := raw["version"].(string)
	if name == "" || version == "" {
		return nil, &ManifestError{Reason: "manifest must set both \"name\" and \"version\""}
	}

	rawTargets, _ := raw["targets"].(map[string]any)
	if len(rawTargets) == 0 {
		return nil, &ManifestError{Reason: "manifest must declare at least one target under \"targets\""}
	}

	m := &Manifest{Name: name, Version: version, Targets: make(map[string]*Target, len(rawTargets))}

	baseCtx := map[string]string{"name": name, "version": version}

	for targetName, rawTarget := range rawTargets {
		tmap, ok := rawTarget.(map[string]any)
		if !ok {
			return nil, &ManifestError{Target: targetName, Reason: "target must be a mapping"}
		}

		ctx := mergeContext(baseCtx, tmap)
		interpolated := interpolateTree(tmap, ctx).(map[string]any)

		target, err := parseTarget(targetName, interpolated)
		if err != nil {
			return nil, err
		}
		m.Targets[targetName] = target
	}

	return m, nil
}

// mergeContext builds the "merged (manifest ∪ target) context" spec §4.4
// describes: the manifest-level name/version, overridden by any of the
// target's own scalar string fields.
func mergeContext(base map[string]string, tmap map[string]any) map[string]string {
	ctx := make(map[string]string, len(base)+len(tmap))
	for k, v := range base {
		ctx[k] = v
	}
	for k, v := range tmap {
		if s, ok := v.(string); ok {
			ctx[k] = s
		}
	}
	return ctx
}

func parseTarget(name string, tmap map[string]any) (*Target, error) {
	t := &Target{Name: name}
	t.Type, _ = tmap["type"].(string)
	t.Host, _ = tmap["host"].(string)
	t.User, _ = tmap["user"].(string)
	t.Port = 22
	if p, ok := toInt(tmap["port"]); ok {
		t.Port = p
	}

	if t.Type != "local" && t.Host == "" {
		if t.Type == "" {
			t.Type = "local"
		}
	} else if t.Host != "" && t.Type == "" {
		t.Type = "ssh"
	}

	if t.Type == "ssh" {
		keyPath, _ := tmap["keyPath"].(string)
		deployPath, _ := tmap["deployPath"].(string)
		if t.Host == "" || t.User == "" || keyPath == "" || deployPath == "" {
			return nil, &ManifestError{Target: name, Reason: "ssh targets require host, user, keyPath, and deployPath"}
		}
		expandedKey, err := expandPath(keyPath)
		if err != nil {
			return nil, &ManifestError{Target: name, Reason: fmt.Sprintf("keyPath: %v", err)}
		}
		t.KeyPath = expandedKey
		t.DeployPath = deployPath
	} else {
		if dp, _ := tmap["deployPath"].(string); dp != "" {
			t.DeployPath = dp
		}
	}

	rawOps, _ := tmap["operations"].([]any)
	ops := make([]Operation, 0, len(rawOps))
	seenActionNames := make(map[string]bool)

	for i, rawOp := range rawOps {
		opMap, ok := rawOp.(map[string]any)
		if !ok {
			return nil, &ManifestError{Target: name, Reason: fmt.Sprintf("operation %d must be a mapping", i)}
		}
		op, err := parseOperation(name, opMap)
		if err != nil {
			return nil, err
		}
		if op.Kind == KindAction {
			if seenActionNames[op.Name] {
				return nil, &ManifestError{Target: name, Reason: fmt.Sprintf("duplicate action name %q", op.Name)}
			}
			seenActionNames[op.Name] = true
		}
		ops = append(ops, *op)
	}
	t.Operations = ops
	return t, nil
}

func parseOperation(target string, m map[string]any) (*Operation, error) {
	op := &Operation{}
	if kind, ok := m["ensure"].(string); ok {
		op.Kind = KindEnsure
		op.EnsureKind = kind
		op.Config = ensureConfig(kind, m)
		op.Name = op.EnsureKey()
		return op, nil
	}
	if kind, ok := m["action"].(string); ok {
		op.Kind = KindAction
		op.ActionKind = kind
		name, _ := m["name"].(string)
		if name == "" {
			return nil, &ManifestError{Target: target, Reason: "action operations require a \"name\""}
		}
		op.Name = name
		op.When = When(stringOr(m["when"], string(WhenAlways)))
		switch kind {
		case "sync":
			op.Source, _ = m["source"].(string)
			op.Destination, _ = m["destination"].(string)
			op.Exclude = toStringSlice(m["exclude"])
			expanded, err := expandPath(op.Source)
			if err != nil {
				return nil, &ManifestError{Target: target, Reason: fmt.Sprintf("action %q source: %v", name, err)}
			}
			op.Source = expanded
		case "command":
			op.Run, _ = m["run"].(string)
		default:
			return nil, &ManifestError{Target: target, Reason: fmt.Sprintf("action %q: unknown action kind %q", name, kind)}
		}
		return op, nil
	}
	if kind, ok := m["verify"].(string); ok {
		op.Kind = KindVerify
		op.VerifyKind = kind
		name, _ := m["name"].(string)
		if name == "" {
			return nil, &ManifestError{Target: target, Reason: "verify operations require a \"name\""}
		}
		op.Name = name
		switch kind {
		case "http":
			op.URL, _ = m["url"].(string)
			op.Timeout = durationOr(m["timeout"], 10*time.Second)
		case "command":
			op.Run, _ = m["run"].(string)
		default:
			return nil, &ManifestError{Target: target, Reason: fmt.Sprintf("verify %q: unknown verify kind %q", name, kind)}
		}
		return op, nil
	}
	return nil, &ManifestError{Target: target, Reason: "operation must set one of \"ensure\", \"action\", or \"verify\""}
}

// ensureConfig extracts the kind-specific fields used both as the lock
// entry's stored config and as the deep-comparison key for convergence.
func ensureConfig(kind string, m map[string]any) map[string]any {
	switch kind {
	case "swap":
		return map[string]any{"size": m["size"]}
	case "docker":
		return map[string]any{"version": m["version"]}
	case "directory":
		return map[string]any{"path": m["path"], "owner": m["owner"]}
	default:
		return map[string]any{}
	}
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func durationOr(v any, def time.Duration) time.Duration {
	s, ok := v.(string)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
