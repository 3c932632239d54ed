package core

import (
	"context"
	"sort"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// In-memory repositories shared by the service and handler tests.

type fakeUserRepo struct {
	seq   int64
	users map[int64]*UserRecord
	links map[string]int64 // provider + "\x00" + providerUserID -> user id

	findErr   error // injected into Find* calls
	createErr error // injected into Create
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users: map[int64]*UserRecord{},
		links: map[string]int64{},
	}
}

func (f *fakeUserRepo) add(email, name string, hash *string, roleID int64, role string) *UserRecord {
	f.seq++
	u := &UserRecord{ID: f.seq, Email: email, Name: name, PasswordHash: hash, RoleID: roleID, Role: role}
	f.users[u.ID] = u
	return u
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*UserRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id int64) (*UserRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) FindByFederated(_ context.Context, provider, providerUserID string) (*UserRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	id, ok := f.links[provider+"\x00"+providerUserID]
	if !ok {
		return nil, nil
	}
	cp := *f.users[id]
	return &cp, nil
}

func (f *fakeUserRepo) Create(_ context.Context, email, name string, passwordHash *string, roleID int64) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	for _, u := range f.users {
		if u.Email == email {
			return 0, uniqueViolation()
		}
	}
	role := DefaultRoleName
	if roleID == adminRoleID {
		role = AdminRoleName
	}
	u := f.add(email, name, passwordHash, roleID, role)
	return u.ID, nil
}

func (f *fakeUserRepo) LinkFederated(_ context.Context, userID int64, provider, providerUserID string) error {
	f.links[provider+"\x00"+providerUserID] = userID
	return nil
}

func (f *fakeUserRepo) HasAdmin(_ context.Context) (bool, error) {
	for _, u := range f.users {
		if u.Role == AdminRoleName {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) List(_ context.Context, page, perPage int) ([]AdminUserListItem, int, error) {
	ids := make([]int64, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	items := make([]AdminUserListItem, 0, perPage)
	start := (page - 1) * perPage
	for i := start; i < len(ids) && i < start+perPage; i++ {
		u := f.users[ids[i]]
		items = append(items, AdminUserListItem{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, CreatedAt: u.CreatedAt})
	}
	return items, len(ids), nil
}

const (
	userRoleID  int64 = 1
	adminRoleID int64 = 2
)

type fakeRoleRepo struct {
	roles map[string]int64
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{roles: map[string]int64{
		DefaultRoleName: userRoleID,
		AdminRoleName:   adminRoleID,
	}}
}

func (f *fakeRoleRepo) FindByName(_ context.Context, name string) (*RoleRecord, error) {
	id, ok := f.roles[name]
	if !ok {
		return nil, nil
	}
	return &RoleRecord{ID: id, Name: name}, nil
}

func (f *fakeRoleRepo) Ensure(_ context.Context, name string) (int64, error) {
	if id, ok := f.roles[name]; ok {
		return id, nil
	}
	id := int64(len(f.roles) + 1)
	f.roles[name] = id
	return id, nil
}

// uniqueViolation mimics the postgres duplicate-key error the real
// repositories surface.
func uniqueViolation() error {
	return &pgconn.PgError{Code: pgerrcode.UniqueViolation, Message: "duplicate key value violates unique constraint"}
}

func mustHash(password string) *string {
	h, err := HashPassword(password)
	if err != nil {
		panic(err)
	}
	return &h
}
