// Package logsurl builds Cloud Console log-explorer deep links. Pure string
// formatting, no I/O.
package logsurl

import (
	"fmt"
	"net/url"
	"strings"
)

// Build assembles a log-explorer URL for the given query, centered around
// updateTime, scoped by scopeKey/scopeValue (e.g. "project"/"my-proj" or
// "organizationId"/"123").
//
// The console expects parentheses inside the query to be escaped twice, hence
// the %28/%29 rewrite after the initial escaping pass.
func Build(query, updateTime, scopeKey, scopeValue string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
	escaped = strings.ReplaceAll(escaped, "%28", "%2528")
	escaped = strings.ReplaceAll(escaped, "%29", "%2529")
	params := fmt.Sprintf("query=%s;aroundTime=%s;duration=PT2M?%s=%s", escaped, updateTime, scopeKey, scopeValue)
	return "https://console.cloud.google.com/logs/query;" + params
}

// ActivityQuery returns the admin-activity query for a service/resource pair,
// used by asset-feed events.
func ActivityQuery(serviceName, resourceName string) string {
	return fmt.Sprintf(
		"log_id(%[1]q)\nprotoPayload.serviceName=%[2]q\nprotoPayload.resourceName:%[3]q",
		"cloudaudit.googleapis.com/activity", serviceName, resourceName,
	)
}

// BucketAddsQuery returns the query matching ADD binding deltas on one
// bucket, used by audit-log events.
func BucketAddsQuery(bucketName string) string {
	return strings.Join([]string{
		`log_id("cloudaudit.googleapis.com/activity")`,
		`protoPayload.serviceName="storage.googleapis.com"`,
		`protoPayload.methodName="storage.setIamPermissions"`,
		fmt.Sprintf(`protoPayload.resourceName="projects/_/buckets/%s"`, bucketName),
		`protoPayload.serviceData.policyDelta.bindingDeltas.action="ADD"`,
	}, "\n")
}
