package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/ttauveron/gcp-iam-watcher/internal/event"
	"github.com/ttauveron/gcp-iam-watcher/internal/logsurl"
)

const (
	gcsServiceName  = "storage.googleapis.com"
	gcsSetIamMethod = "storage.setIamPermissions"
	gcsBucketType   = "gcs_bucket"

	bucketAssetType = "storage.googleapis.com/Bucket"
)

var bucketFromResourceName = regexp.MustCompile(`/buckets/([^/]+)$`)

// AuditEngine extracts ADD binding deltas from GCS admin-activity audit
// records. Removals are never notified from this path.
type AuditEngine struct {
	log *slog.Logger
}

func NewAuditEngine(log *slog.Logger) *AuditEngine {
	return &AuditEngine{log: log}
}

// Extract filters the record's binding deltas down to ADDs, groups the
// surviving members by (role, condition) in first-seen order, and assembles a
// change event, or nil when there is nothing to notify.
func (e *AuditEngine) Extract(raw []byte) (*event.IamChange, error) {
	var rec auditRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode audit record: %w", err)
	}

	pp := rec.ProtoPayload
	if pp.ServiceName != gcsServiceName || pp.MethodName != gcsSetIamMethod || rec.Resource.Type != gcsBucketType {
		e.log.Debug("not a GCS SetIamPolicy event, skipping")
		return nil, nil
	}

	var adds []bindingDelta
	for _, d := range pp.ServiceData.PolicyDelta.BindingDeltas {
		if d.Action == "ADD" {
			adds = append(adds, d)
		}
	}
	if len(adds) == 0 {
		// The primary high-volume filter: most IAM audit events are not
		// additive grants.
		e.log.Info("bucket IAM change has no ADD actions, skipping notify")
		return nil, nil
	}

	bucket := e.bucketName(rec)
	project := rec.Resource.Labels["project_id"]
	if project == "" {
		project = "unknown-project"
	}
	actor := pp.AuthenticationInfo.PrincipalEmail
	if actor == "" {
		actor = "unknown"
	}

	url := logsurl.Build(logsurl.BucketAddsQuery(bucket), rec.Timestamp, "project", project)

	return &event.IamChange{
		ResourceType:    bucketAssetType,
		ResourceName:    bucket,
		ResourceDisplay: project,
		Actor:           actor,
		Source:          event.SourceAuditLog,
		Timestamp:       rec.Timestamp,
		LogsURL:         url,
		Raw:             raw,
		Changes:         groupDeltas(adds),
	}, nil
}

// bucketName resolves the bucket in priority order: structured label,
// trailing path segment of the resource name, the literal resource name, a
// sentinel.
func (e *AuditEngine) bucketName(rec auditRecord) string {
	if name := rec.Resource.Labels["bucket_name"]; name != "" {
		return name
	}
	rn := rec.ProtoPayload.ResourceName
	if m := bucketFromResourceName.FindStringSubmatch(rn); m != nil {
		return m[1]
	}
	if rn != "" {
		return rn
	}
	return "unknown-bucket"
}

// groupDeltas accumulates members per (role, condition), preserving the order
// groups are first seen.
func groupDeltas(adds []bindingDelta) []event.ChangeGroup {
	seen := make(map[bindingKey]int, len(adds))
	var groups []event.ChangeGroup

	for _, d := range adds {
		role := d.Role
		if role == "" {
			role = "unknown-role"
		}
		member := d.Member
		if member == "" {
			member = "unknown-member"
		}

		key := bindingKey{role, d.Condition.Key()}
		if i, ok := seen[key]; ok {
			groups[i].Members = append(groups[i].Members, member)
			continue
		}
		seen[key] = len(groups)
		groups = append(groups, event.ChangeGroup{
			Type:      event.BindingAdded,
			Role:      role,
			Condition: d.Condition,
			Members:   []string{member},
		})
	}
	return groups
}
