// internal/membership/implementation.go
package membership

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"bookstore/internal/apperr"
	"bookstore/internal/database"
	"bookstore/internal/jsonx"
	"bookstore/internal/paging"
	"bookstore/internal/validation"
)

// service implements the Service interface.
type service struct {
	db       *sqlx.DB
	log      logrus.FieldLogger
	validate *validation.Validator
}

// NewService creates a new membership service instance.
func NewService(db *sqlx.DB, log logrus.FieldLogger) Service {
	return &service{
		db:       db,
		log:      log.WithField("component", "membership"),
		validate: validation.New(),
	}
}

var usersTable = database.Table{
	Name:    "users",
	Columns: []string{"id", "name", "username", "email", "age", "location", "bio", "created_at"},
	Search:  []string{"name", "username", "email", "location"},
}

func (s *service) ListUsers(ctx context.Context, p paging.Params) (paging.Page[User], error) {
	page, err := database.List[User](ctx, s.db, usersTable, p)
	if err != nil {
		return page, apperr.Store(err, "failed to list users")
	}
	return page, nil
}

func (s *service) GetUser(ctx context.Context, id int64) (*User, error) {
	if id <= 0 {
		return nil, apperr.Validation("id is required")
	}
	u, err := database.Get[User](ctx, s.db, usersTable, id, false)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("user %d not found", id)
		}
		return nil, apperr.Store(err, "failed to load user")
	}
	return u, nil
}

// CreateUser registers a user. Username and email must be unused.
func (s *service) CreateUser(ctx context.Context, in UserInput) (*User, error) {
	in.normalize()
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	var u User
	err := database.Insert(ctx, s.db, usersTable,
		[]string{"name", "username", "email", "age", "location", "bio"},
		[]any{in.Name, in.Username, in.Email, in.Age, in.Location, in.Bio}, &u)
	if err != nil {
		return nil, saveErr(err)
	}
	s.log.WithFields(logrus.Fields{"user_id": u.ID, "username": u.Username}).Info("user created")
	return &u, nil
}

// UpdateUser applies the fields present in p.
func (s *service) UpdateUser(ctx context.Context, id int64, p UserPatch) (*User, error) {
	if id <= 0 {
		return nil, apperr.Validation("id is required")
	}

	var a database.Assignments
	for _, f := range []struct {
		col string
		val jsonx.Optional[string]
	}{{"name", p.Name}, {"username", p.Username}, {"email", p.Email}} {
		if !f.val.Set {
			continue
		}
		v := blankToNil(f.val.Value)
		if v == nil {
			return nil, apperr.Validation("%s is required", f.col).WithDetails(f.col, f.col+" is required")
		}
		a.Set(f.col, *v)
	}
	if p.Email.Present() {
		email := strings.ToLower(strings.TrimSpace(*p.Email.Value))
		if err := s.validate.Var("email", email, "email"); err != nil {
			return nil, err
		}
		a.Set("email", email)
	}
	if p.Age.Set {
		if p.Age.Value != nil && (*p.Age.Value < 0 || *p.Age.Value > 150) {
			return nil, apperr.Validation("age must be between 0 and 150").WithDetails("age", "out of range")
		}
		a.Set("age", p.Age.Value)
	}
	if p.Location.Set {
		a.Set("location", blankToNil(p.Location.Value))
	}
	if p.Bio.Set {
		a.Set("bio", p.Bio.Value)
	}

	var u User
	if err := database.Update(ctx, s.db, usersTable, id, &a, &u); err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("user %d not found", id)
		}
		return nil, saveErr(err)
	}
	return &u, nil
}

// DeleteUsers removes users. The rentals foreign key blocks users with
// rental history.
func (s *service) DeleteUsers(ctx context.Context, ids []int64, single bool) (int64, error) {
	if len(ids) == 0 {
		return 0, apperr.Validation("id or ids required")
	}
	n, err := database.Delete(ctx, s.db, usersTable, ids)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return 0, apperr.Conflict("user has rentals and cannot be deleted")
		}
		return 0, apperr.Store(err, "failed to delete users")
	}
	if single && n == 0 {
		return 0, apperr.NotFound("user %d not found", ids[0])
	}
	s.log.WithFields(logrus.Fields{"requested": len(ids), "deleted": n}).Info("users deleted")
	return n, nil
}

func saveErr(err error) error {
	if database.IsUniqueViolation(err) {
		return apperr.Validation("username or email is already taken")
	}
	return apperr.Store(err, "failed to save user")
}
