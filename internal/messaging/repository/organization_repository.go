package repository

import (
	"context"
	"sync"

	"school_messaging_service/pkg"

	"github.com/jackc/pgx/v4/pgxpool"
)

// OrganizationDirectory definition organization membership lookup
type OrganizationDirectory interface {
	IsMember(ctx context.Context, organizationID, memberID string) (bool, error)
}

type pgOrganizationDirectory struct {
	db *pgxpool.Pool
}

// NewPgOrganizationDirectory create directory backed by organization_members
func NewPgOrganizationDirectory(db *pgxpool.Pool) OrganizationDirectory {
	return &pgOrganizationDirectory{db: db}
}

func (r *pgOrganizationDirectory) IsMember(ctx context.Context, organizationID, memberID string) (bool, error) {
	defer observe("directory.is_member")()

	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM organization_members WHERE organization_id = $1 AND member_id = $2)",
		organizationID, memberID,
	).Scan(&exists)
	if err != nil {
		return false, storageErr(err)
	}
	return exists, nil
}

// StaticOrganizationDirectory fixed membership, for local runs and tests
type StaticOrganizationDirectory struct {
	mu      sync.RWMutex
	members map[string][]string
}

// NewStaticOrganizationDirectory create directory from organization -> member ids
func NewStaticOrganizationDirectory(members map[string][]string) *StaticOrganizationDirectory {
	d := &StaticOrganizationDirectory{members: map[string][]string{}}
	for org, ids := range members {
		d.members[org] = append([]string(nil), ids...)
	}
	return d
}

// Add member to organization
func (d *StaticOrganizationDirectory) Add(organizationID string, memberIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[organizationID] = pkg.UniqueSorted(append(d.members[organizationID], memberIDs...))
}

// IsMember OrganizationDirectory
func (d *StaticOrganizationDirectory) IsMember(_ context.Context, organizationID, memberID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return pkg.Contains(d.members[organizationID], memberID), nil
}
