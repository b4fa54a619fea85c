package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"bookstore/internal/apperr"
	"bookstore/internal/database"
	"bookstore/internal/jsonx"
	"bookstore/internal/paging"
)

// reference describes a catalog entry that books point at by name.
type reference struct {
	table  database.Table
	noun   string
	column string
	// matchID also counts books whose column holds the entry id as text.
	matchID bool
	// cascade renames the books column along with the entry.
	cascade bool
	// unique names the column with a unique constraint, if any.
	unique string
}

var (
	authors = reference{
		table: database.Table{
			Name:    "authors",
			Columns: []string{"id", "name", "email", "nationality", "birth_year", "bio", "created_at"},
			Search:  []string{"name", "nationality"},
		},
		noun:    "author",
		column:  "author",
		cascade: true,
		unique:  "email",
	}
	genres = reference{
		table: database.Table{
			Name:    "genres",
			Columns: []string{"id", "name", "description", "created_at"},
			Search:  []string{"name", "description"},
		},
		noun:    "genre",
		column:  "genre",
		matchID: true,
	}
	publishers = reference{
		table: database.Table{
			Name:    "publishers",
			Columns: []string{"id", "name", "country", "founded_year", "website", "note", "created_at"},
			Search:  []string{"name", "country"},
		},
		noun:    "publisher",
		column:  "publisher",
		cascade: true,
	}
)

func listRefs[T any](ctx context.Context, s *service, ref reference, p paging.Params) (paging.Page[T], error) {
	page, err := database.List[T](ctx, s.db, ref.table, p)
	if err != nil {
		return page, apperr.Store(err, "failed to list %ss", ref.noun)
	}
	return page, nil
}

func getRef[T any](ctx context.Context, s *service, ref reference, id int64) (*T, error) {
	if id <= 0 {
		return nil, apperr.Validation("id is required")
	}
	row, err := database.Get[T](ctx, s.db, ref.table, id, false)
	if err != nil {
		return nil, lookupErr(err, ref.noun, id)
	}
	return row, nil
}

func (s *service) insertRef(ctx context.Context, ref reference, cols []string, args []any, dest any) error {
	if err := database.Insert(ctx, s.db, ref.table, cols, args, dest); err != nil {
		return saveErr(err, ref)
	}
	return nil
}

// Authors

func (s *service) ListAuthors(ctx context.Context, p paging.Params) (paging.Page[Author], error) {
	return listRefs[Author](ctx, s, authors, p)
}

func (s *service) GetAuthor(ctx context.Context, id int64) (*Author, error) {
	return getRef[Author](ctx, s, authors, id)
}

func (s *service) CreateAuthor(ctx context.Context, in AuthorInput) (*Author, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = blankToNil(in.Email)
	in.Nationality = blankToNil(in.Nationality)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	var a Author
	err := s.insertRef(ctx, authors,
		[]string{"name", "email", "nationality", "birth_year", "bio"},
		[]any{in.Name, in.Email, in.Nationality, in.BirthYear, in.Bio}, &a)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *service) UpdateAuthor(ctx context.Context, id int64, p AuthorPatch) (*Author, error) {
	var a database.Assignments
	name, err := setName(&a, p.Name)
	if err != nil {
		return nil, err
	}
	if p.Email.Set {
		email := blankToNil(p.Email.Value)
		if email != nil {
			if err := s.validate.Var("email", *email, "email"); err != nil {
				return nil, err
			}
		}
		a.Set("email", email)
	}
	setText(&a, "nationality", p.Nationality)
	if err := setYear(&a, "birth_year", p.BirthYear); err != nil {
		return nil, err
	}
	setText(&a, "bio", p.Bio)

	var out Author
	if err := s.updateRef(ctx, authors, id, &a, name, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *service) DeleteAuthors(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	return s.deleteRefs(ctx, authors, req)
}

// Genres

func (s *service) ListGenres(ctx context.Context, p paging.Params) (paging.Page[Genre], error) {
	return listRefs[Genre](ctx, s, genres, p)
}

func (s *service) GetGenre(ctx context.Context, id int64) (*Genre, error) {
	return getRef[Genre](ctx, s, genres, id)
}

func (s *service) CreateGenre(ctx context.Context, in GenreInput) (*Genre, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	var g Genre
	if err := s.insertRef(ctx, genres, []string{"name", "description"}, []any{in.Name, in.Description}, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *service) UpdateGenre(ctx context.Context, id int64, p GenrePatch) (*Genre, error) {
	var a database.Assignments
	name, err := setName(&a, p.Name)
	if err != nil {
		return nil, err
	}
	setText(&a, "description", p.Description)

	var out Genre
	if err := s.updateRef(ctx, genres, id, &a, name, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *service) DeleteGenres(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	return s.deleteRefs(ctx, genres, req)
}

// Publishers

func (s *service) ListPublishers(ctx context.Context, p paging.Params) (paging.Page[Publisher], error) {
	return listRefs[Publisher](ctx, s, publishers, p)
}

func (s *service) GetPublisher(ctx context.Context, id int64) (*Publisher, error) {
	return getRef[Publisher](ctx, s, publishers, id)
}

func (s *service) CreatePublisher(ctx context.Context, in PublisherInput) (*Publisher, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Country = blankToNil(in.Country)
	in.Website = blankToNil(in.Website)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	var p Publisher
	err := s.insertRef(ctx, publishers,
		[]string{"name", "country", "founded_year", "website", "note"},
		[]any{in.Name, in.Country, in.FoundedYear, in.Website, in.Note}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *service) UpdatePublisher(ctx context.Context, id int64, p PublisherPatch) (*Publisher, error) {
	var a database.Assignments
	name, err := setName(&a, p.Name)
	if err != nil {
		return nil, err
	}
	setText(&a, "country", p.Country)
	if err := setYear(&a, "founded_year", p.FoundedYear); err != nil {
		return nil, err
	}
	setText(&a, "website", p.Website)
	setText(&a, "note", p.Note)

	var out Publisher
	if err := s.updateRef(ctx, publishers, id, &a, name, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *service) DeletePublishers(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	return s.deleteRefs(ctx, publishers, req)
}

// updateRef applies a to an entry. When the entry is renamed and ref
// cascades, books carrying the old name take the new one in the same
// transaction.
func (s *service) updateRef(ctx context.Context, ref reference, id int64, a *database.Assignments, name *string, dest any) error {
	if id <= 0 {
		return apperr.Validation("id is required")
	}
	return database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var old string
		err := sqlx.GetContext(ctx, tx, &old, "SELECT name FROM "+ref.table.Name+" WHERE id = $1 FOR UPDATE", id)
		if err != nil {
			return lookupErr(err, ref.noun, id)
		}
		if err := database.Update(ctx, tx, ref.table, id, a, dest); err != nil {
			return saveErr(err, ref)
		}
		if !ref.cascade || name == nil || *name == old {
			return nil
		}

		res, err := tx.ExecContext(ctx,
			"UPDATE books SET "+ref.column+" = $1, updated_at = NOW() WHERE "+ref.column+" = $2", *name, old)
		if err != nil {
			return apperr.Store(err, "failed to rename %s on books", ref.noun)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperr.Store(err, "failed to rename %s on books", ref.noun)
		}
		s.log.WithFields(logrus.Fields{ref.noun + "_id": id, "from": old, "to": *name, "books": n}).
			Info("cascaded rename to books")
		return nil
	})
}

// usage is an entry selected for deletion and the number of books that
// still reference it.
type usage struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Books int    `db:"-"`
}

// deleteRefs deletes the entries no visible book uses. A single delete of a
// used entry is a conflict; a batch keeps the used ones and reports them.
func (s *service) deleteRefs(ctx context.Context, ref reference, req DeleteRequest) (DeleteResult, error) {
	if len(req.IDs) == 0 {
		return DeleteResult{}, apperr.Validation("id or ids required")
	}
	hidden := append([]int64{}, req.HiddenBookIDs...)

	var res DeleteResult
	err := database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		rows := []usage{}
		err := sqlx.SelectContext(ctx, tx, &rows,
			"SELECT id, name FROM "+ref.table.Name+" WHERE id = ANY($1) ORDER BY id FOR UPDATE", pq.Array(req.IDs))
		if err != nil {
			return apperr.Store(err, "failed to load %ss", ref.noun)
		}
		if len(rows) == 0 {
			if req.Single {
				return apperr.NotFound("%s %d not found", ref.noun, req.IDs[0])
			}
			return nil
		}

		for i := range rows {
			n, err := countBooks(ctx, tx, ref, rows[i], hidden)
			if err != nil {
				return apperr.Store(err, "failed to check %s usage", ref.noun)
			}
			rows[i].Books = n
		}

		free, blocked := partition(rows)
		if len(free) == 0 {
			if req.Single {
				return apperr.Conflict("cannot delete %s %q: it is used by %d book(s)", ref.noun, rows[0].Name, rows[0].Books).
					WithDetails("books", rows[0].Books)
			}
			return apperr.Conflict("cannot delete: every selected %s is used by books (%s)", ref.noun, strings.Join(blocked, ", ")).
				WithDetails("blocked", blocked)
		}

		n, err := database.Delete(ctx, tx, ref.table, free)
		if err != nil {
			return apperr.Store(err, "failed to delete %ss", ref.noun)
		}
		res = DeleteResult{Deleted: n, Blocked: blocked}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}
	s.log.WithFields(logrus.Fields{"deleted": res.Deleted, "blocked": len(res.Blocked)}).Infof("%ss deleted", ref.noun)
	return res, nil
}

func countBooks(ctx context.Context, q sqlx.QueryerContext, ref reference, u usage, hidden []int64) (int, error) {
	match := ref.column + " = $1"
	args := []any{u.Name}
	if ref.matchID {
		args = append(args, strconv.FormatInt(u.ID, 10))
		match = fmt.Sprintf("(%s OR %s = $%d)", match, ref.column, len(args))
	}
	args = append(args, pq.Array(hidden))
	query := fmt.Sprintf("SELECT COUNT(*) FROM books WHERE %s AND NOT (id = ANY($%d))", match, len(args))

	var n int
	err := sqlx.GetContext(ctx, q, &n, query, args...)
	return n, err
}

// partition splits entries into deletable ids and the names of used ones.
func partition(rows []usage) (free []int64, blocked []string) {
	for _, u := range rows {
		if u.Books > 0 {
			blocked = append(blocked, u.Name)
			continue
		}
		free = append(free, u.ID)
	}
	return free, blocked
}

func setName(a *database.Assignments, o jsonx.Optional[string]) (*string, error) {
	if !o.Set {
		return nil, nil
	}
	name := blankToNil(o.Value)
	if name == nil {
		return nil, apperr.Validation("name is required").WithDetails("name", "name is required")
	}
	a.Set("name", *name)
	return name, nil
}

func setText(a *database.Assignments, col string, o jsonx.Optional[string]) {
	if o.Set {
		a.Set(col, blankToNil(o.Value))
	}
}

func setYear(a *database.Assignments, col string, o jsonx.Optional[int]) error {
	if !o.Set {
		return nil
	}
	if o.Value != nil && (*o.Value < 0 || *o.Value > 9999) {
		return apperr.Validation("%s must be between 0 and 9999", col).WithDetails(col, "out of range")
	}
	a.Set(col, o.Value)
	return nil
}

func saveErr(err error, ref reference) error {
	if database.IsUniqueViolation(err) && ref.unique != "" {
		return apperr.Validation("%s %s is already taken", ref.noun, ref.unique).
			WithDetails(ref.unique, "already taken")
	}
	return apperr.Store(err, "failed to save %s", ref.noun)
}
