package naming

import (
	"context"
	"fmt"
	"strings"
	"sync"

	crm "google.golang.org/api/cloudresourcemanager/v3"
)

// CRMResolver resolves ancestors against the Cloud Resource Manager v3 API.
// The underlying service is built lazily on first use with application
// default credentials, then reused for every later message. Construction
// failure surfaces as a lookup error, which callers already treat as soft.
type CRMResolver struct {
	once sync.Once
	svc  *crm.Service
	err  error
}

func NewCRMResolver() *CRMResolver {
	return &CRMResolver{}
}

func (r *CRMResolver) service() (*crm.Service, error) {
	r.once.Do(func() {
		// Background context: the client outlives any single message.
		r.svc, r.err = crm.NewService(context.Background())
		if r.err != nil {
			r.err = fmt.Errorf("build cloudresourcemanager client: %w", r.err)
		}
	})
	return r.svc, r.err
}

// Resolve classifies the ancestor reference and fetches its display name.
// An unrecognized scope is not an error; it resolves to the fallback shape
// without touching the API.
func (r *CRMResolver) Resolve(ctx context.Context, ancestor string) (Resource, error) {
	switch {
	case strings.HasPrefix(ancestor, "projects/"):
		svc, err := r.service()
		if err != nil {
			return Resource{}, err
		}
		proj, err := svc.Projects.Get(ancestor).Context(ctx).Do()
		if err != nil {
			return Resource{}, fmt.Errorf("get %s: %w", ancestor, err)
		}
		return Resource{Kind: KindProject, ID: proj.ProjectId, Display: proj.ProjectId}, nil

	case strings.HasPrefix(ancestor, "folders/"):
		svc, err := r.service()
		if err != nil {
			return Resource{}, err
		}
		fld, err := svc.Folders.Get(ancestor).Context(ctx).Do()
		if err != nil {
			return Resource{}, fmt.Errorf("get %s: %w", ancestor, err)
		}
		name := fld.Name
		if name == "" {
			name = ancestor
		}
		display := fld.DisplayName
		if display == "" {
			display = ancestor
		}
		return Resource{
			Kind:    KindFolder,
			ID:      lastSegment(name),
			Display: display + " (*folder-level*)",
		}, nil

	case strings.HasPrefix(ancestor, "organizations/"):
		svc, err := r.service()
		if err != nil {
			return Resource{}, err
		}
		org, err := svc.Organizations.Get(ancestor).Context(ctx).Do()
		if err != nil {
			return Resource{}, fmt.Errorf("get %s: %w", ancestor, err)
		}
		name := org.Name
		if name == "" {
			name = ancestor
		}
		display := org.DisplayName
		if display == "" {
			display = ancestor
		}
		return Resource{
			Kind:    KindOrganization,
			ID:      lastSegment(name),
			Display: display + " (*organization-level*)",
		}, nil

	default:
		return Fallback(ancestor), nil
	}
}

func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
