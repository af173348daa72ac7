package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ttauveron/gcp-iam-watcher/internal/event"
	"github.com/ttauveron/gcp-iam-watcher/internal/logsurl"
	"github.com/ttauveron/gcp-iam-watcher/internal/naming"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/metrics"
)

// Asset types the feed path ignores; bucket IAM changes are already covered
// by the audit-log path.
var ignoredAssetTypes = map[string]struct{}{
	"storage.googleapis.com/Bucket": {},
}

// Basic-role member markers stripped from every emitted group. Legacy
// project-level grants are rarely actionable and drown out real signal.
var basicRoleMarkers = []string{"projectEditor", "projectOwner", "projectViewer"}

// AssetEngine reduces a before/after IAM policy snapshot into the members
// newly granted per (role, condition).
type AssetEngine struct {
	resolver naming.Resolver
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func NewAssetEngine(resolver naming.Resolver, log *slog.Logger, m *metrics.Metrics) *AssetEngine {
	return &AssetEngine{resolver: resolver, log: log, metrics: m}
}

// Reduce diffs the record's current policy against its prior policy and
// assembles a change event, or nil when there is nothing to notify.
func (e *AssetEngine) Reduce(ctx context.Context, raw []byte) (*event.IamChange, error) {
	var rec feedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode asset record: %w", err)
	}

	if rec.Asset == nil || rec.Asset.AssetType == "" {
		e.log.Debug("no asset payload, skipping")
		return nil, nil
	}
	if _, ignored := ignoredAssetTypes[rec.Asset.AssetType]; ignored {
		e.log.Info("skipping asset type", "asset_type", rec.Asset.AssetType)
		return nil, nil
	}

	groups := diffBindings(rec.Asset.bindings(), rec.PriorAsset.bindings())
	groups = stripBasicRoles(groups)
	if len(groups) == 0 {
		return nil, nil
	}

	var ancestor string
	if len(rec.Asset.Ancestors) > 0 {
		ancestor = rec.Asset.Ancestors[0]
	}

	res, err := e.resolver.Resolve(ctx, ancestor)
	if err != nil {
		e.log.Warn("resource name lookup failed, falling back to raw ancestor", "ancestor", ancestor, "error", err)
		e.metrics.IncNamingFallback()
		res = naming.Fallback(ancestor)
	}

	serviceName := serviceOf(rec.Asset.AssetType)
	resourceName := lastSegment(rec.Asset.Name)
	if strings.Contains(rec.Asset.Name, "cloudresourcemanager.googleapis.com") {
		resourceName = res.ID
	}
	query := logsurl.ActivityQuery(serviceName, resourceName)
	url := logsurl.Build(query, rec.Asset.UpdateTime, res.Kind.ScopeKey(), res.ID)

	return &event.IamChange{
		ResourceType:    rec.Asset.AssetType,
		ResourceName:    rec.Asset.Name,
		ResourceDisplay: res.Display,
		Source:          event.SourceAssetFeed,
		Timestamp:       rec.Asset.UpdateTime,
		LogsURL:         url,
		Raw:             raw,
		Changes:         groups,
	}, nil
}

type bindingKey struct {
	role string
	cond event.ConditionKey
}

// diffBindings compares current bindings against prior bindings keyed by
// (role, condition). A key absent from the prior policy reports the whole
// current member set; a key present in both reports only the added members.
// Bindings without a role are unusable and skipped on either side. Group
// order follows current-binding order; member lists come out sorted.
func diffBindings(current, prior []binding) []event.ChangeGroup {
	priorIndex := make(map[bindingKey]map[string]struct{}, len(prior))
	for _, b := range prior {
		if b.Role == "" {
			continue
		}
		members := make(map[string]struct{}, len(b.Members))
		for _, m := range b.Members {
			members[m] = struct{}{}
		}
		priorIndex[bindingKey{b.Role, b.Condition.Key()}] = members
	}

	var groups []event.ChangeGroup
	for _, b := range current {
		if b.Role == "" || len(b.Members) == 0 {
			continue
		}

		key := bindingKey{b.Role, b.Condition.Key()}
		prev, existed := priorIndex[key]

		if !existed {
			// First sighting of this (role, condition): report the whole
			// binding, there is no meaningful prior to diff against.
			groups = append(groups, event.ChangeGroup{
				Type:      event.BindingAdded,
				Role:      b.Role,
				Condition: b.Condition,
				Members:   sortedUnique(b.Members),
			})
			continue
		}

		var added []string
		for _, m := range sortedUnique(b.Members) {
			if _, ok := prev[m]; !ok {
				added = append(added, m)
			}
		}
		if len(added) > 0 {
			groups = append(groups, event.ChangeGroup{
				Type:      event.BindingAdded,
				Role:      b.Role,
				Condition: b.Condition,
				Members:   added,
			})
		}
	}
	return groups
}

// stripBasicRoles removes legacy basic-role members from every group and
// drops groups that end up empty. Asset path only.
func stripBasicRoles(groups []event.ChangeGroup) []event.ChangeGroup {
	kept := groups[:0]
	for _, g := range groups {
		members := g.Members[:0]
		for _, m := range g.Members {
			if !isBasicRoleMember(m) {
				members = append(members, m)
			}
		}
		if len(members) == 0 {
			continue
		}
		g.Members = members
		kept = append(kept, g)
	}
	return kept
}

func isBasicRoleMember(member string) bool {
	for _, marker := range basicRoleMarkers {
		if strings.Contains(member, marker) {
			return true
		}
	}
	return false
}

// serviceOf extracts the service from an asset type, the first path segment
// of e.g. "cloudresourcemanager.googleapis.com/Project".
func serviceOf(assetType string) string {
	trimmed := strings.TrimLeft(assetType, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func sortedUnique(members []string) []string {
	seen := make(map[string]struct{}, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
