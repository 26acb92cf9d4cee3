package serialdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// player exercises the rowid key path.
type player struct {
	ID    int64
	Name  string
	Score int64
}

func (p *player) DatabaseTableName() string      { return "players" }
func (p *player) DatabasePrimaryKey() PrimaryKey { return RowIDKey("id") }

func (p *player) PersistentValues() map[string]Value {
	id := Null
	if p.ID != 0 {
		id = Integer(p.ID)
	}
	return map[string]Value{
		"id":    id,
		"name":  Text(p.Name),
		"score": Integer(p.Score),
	}
}

func (p *player) PopulateFromRow(row Row) {
	if v, ok := DecodeColumn[int64](row, "id"); ok {
		p.ID = v
	}
	if v, ok := DecodeColumn[string](row, "name"); ok {
		p.Name = v
	}
	if v, ok := DecodeColumn[int64](row, "score"); ok {
		p.Score = v
	}
}

func (p *player) AssignRowID(id int64) { p.ID = id }

// setting exercises the application-supplied single-column key path.
type setting struct {
	Key   string
	Value string
}

func (s *setting) DatabaseTableName() string      { return "settings" }
func (s *setting) DatabasePrimaryKey() PrimaryKey { return SingleColumnKey("key") }

func (s *setting) PersistentValues() map[string]Value {
	key := Null
	if s.Key != "" {
		key = Text(s.Key)
	}
	return map[string]Value{"key": key, "value": Text(s.Value)}
}

func (s *setting) PopulateFromRow(row Row) {
	if v, ok := DecodeColumn[string](row, "key"); ok {
		s.Key = v
	}
	if v, ok := DecodeColumn[string](row, "value"); ok {
		s.Value = v
	}
}

// enrollment exercises the composite key path.
type enrollment struct {
	StudentID int64
	CourseID  int64
	Grade     string
}

func (e *enrollment) DatabaseTableName() string { return "enrollments" }
func (e *enrollment) DatabasePrimaryKey() PrimaryKey {
	return CompositeKey("student_id", "course_id")
}

func (e *enrollment) PersistentValues() map[string]Value {
	student, course := Null, Null
	if e.StudentID != 0 {
		student = Integer(e.StudentID)
	}
	if e.CourseID != 0 {
		course = Integer(e.CourseID)
	}
	return map[string]Value{
		"student_id": student,
		"course_id":  course,
		"grade":      Text(e.Grade),
	}
}

func (e *enrollment) PopulateFromRow(row Row) {
	if v, ok := DecodeColumn[int64](row, "student_id"); ok {
		e.StudentID = v
	}
	if v, ok := DecodeColumn[int64](row, "course_id"); ok {
		e.CourseID = v
	}
	if v, ok := DecodeColumn[string](row, "grade"); ok {
		e.Grade = v
	}
}

// keyless exercises the NoPrimaryKey rejection path.
type keyless struct{}

func (keyless) DatabaseTableName() string          { return "logs" }
func (keyless) DatabasePrimaryKey() PrimaryKey     { return NoPrimaryKey() }
func (keyless) PersistentValues() map[string]Value { return map[string]Value{"msg": Text("x")} }
func (keyless) PopulateFromRow(Row)                {}

func newRecordQueue(t *testing.T) *Queue {
	t.Helper()
	q := NewTestQueue(t)
	MustExecute(t, q, `CREATE TABLE players (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 0
	)`, Bindings{})
	MustExecute(t, q, `CREATE TABLE settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`, Bindings{})
	MustExecute(t, q, `CREATE TABLE enrollments (
		student_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		grade TEXT NOT NULL,
		PRIMARY KEY (student_id, course_id)
	)`, Bindings{})
	return q
}

func TestInsertAssignsRowID(t *testing.T) {
	q := newRecordQueue(t)
	ctx := context.Background()

	err := q.InTransaction(ctx, func(ctx context.Context, db *DB) (Completion, error) {
		arthur := &player{Name: "Arthur", Score: 36}
		if err := Insert(ctx, db, arthur); err != nil {
			return Rollback, err
		}
		assert.NotZero(t, arthur.ID)

		zaphod := &player{Name: "Zaphod", Score: 42}
		if err := Insert(ctx, db, zaphod); err != nil {
			return Rollback, err
		}
		assert.Equal(t, arthur.ID+1, zaphod.ID)
		return Commit, nil
	})
	require.NoError(t, err)
}

func TestInsertThenFetchByKey(t *testing.T) {
	q := newRecordQueue(t)
	ctx := context.Background()

	var id int64
	err := q.InTransaction(ctx, func(ctx context.Context, db *DB) (Completion, error) {
		p := &player{Name: "Arthur", Score: 36}
		if err := Insert(ctx, db, p); err != nil {
			return Rollback, err
		}
		id = p.ID
		return Commit, nil
	})
	require.NoError(t, err)

	err = q.InDatabase(ctx, func(ctx context.Context, db *DB) error {
		got, found, err := FetchByKey[player](ctx, db, id)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "Arthur", got.Name)
		assert.Equal(t, int64(36), got.Score)
		assert.Equal(t, id, got.ID)

		_, found, err = FetchByKey[player](ctx, db, id+1000)
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	})
	require.NoError(t, err)
}

func TestInsertPreservesExplicitKey(t *testing.T) {
	q := newRecordQueue(t)
	ctx := context.Background()

	err := q.InDatabase(ctx, func(ctx context.Context, db *DB) error {
		p := &player{ID: 77, Name: "Ford", Score: 10}
		if err := Insert(ctx, db, p); err != nil {
			return err
		}
		assert.Equal(t, int64(77), p.ID)

		got, found, err := FetchByKey[player](ctx, db, 77)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "Ford", got.Name)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdate(t *testing.T) {
	q := newRecordQueue(t)
	ctx := context.Background()

	err := q.InDatabase(ctx, func(ctx context.Context, db *DB) error {
		p := &player{Name: "Arthur", Score: 36}
		if err := Insert(ctx, db, p); err != nil {
			return err
		}

		p.Score = 40
		affected, err := Update(ctx, db, p)
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)

		got, _, err := FetchByKey[player](ctx, db, p.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(40), got.Score)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateMissingRowIsNotAnError(t *testing.T) {
	q := newRecordQueue(t)

	err := q.InDatabase(context.Background(), func(ctx context.Context, db *DB) error {
		affected, err := Update(ctx, db, &player{ID: 999, Name: "Nobody", Score: 0})
		require.NoError(t, err)
		assert.Equal(t, int64(0), affected)
		return nil
	})
	require.NoError(t, err)
}

func TestDelete(t *testing.T) {
	q := newRecordQueue(t)
	ctx := context.Background()

	err := q.InDatabase(ctx, func(ctx context.Context, db *DB) error {
		p := &player{Name: "Arthur", Score: 36}
		if err := Insert(ctx, db, p); err != nil {
			return err
		}

		affected, err := Delete(ctx, db, p)
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)

		affected, err = Delete(ctx, db, p)
		require.NoError(t, err)
		assert.Equal(t, int64(0), affected)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateDeleteUnsetKey(t *testing.T) {
	q := newRecordQueue(t)

	err := q.InDatabase(context.Background(), func(ctx context.Context, db *DB) error {
		unsaved := &player{Name: "Arthur", Score: 36}

		_, err := Update(ctx, db, unsaved)
		assert.ErrorIs(t, err, ErrUnsupported)

		_, err = Delete(ctx, db, unsaved)
		assert.ErrorIs(t, err, ErrUnsupported)
		return nil
	})
	require.NoError(t, err)
}

func TestNoPrimaryKeyRejected(t *testing.T) {
	q := newRecordQueue(t)

	err := q.InDatabase(context.Background(), func(ctx context.Context, db *DB) error {
		assert.ErrorIs(t, Insert(ctx, db, keyless{}), ErrUnsupported)

		_, err := Update(ctx, db, keyless{})
		assert.ErrorIs(t, err, ErrUnsupported)

		_, err = Delete(ctx, db, keyless{})
		assert.ErrorIs(t, err, ErrUnsupported)

		_, err = Exists(ctx, db, keyless{})
		assert.ErrorIs(t, err, ErrUnsupported)
		return nil
	})
	require.NoError(t, err)
}

func TestExists(t *testing.T) {
	q := newRecordQueue(t)

	err := q.InDatabase(context.Background(), func(ctx context.Context, db *DB) error {
		s := &setting{Key: "theme", Value: "dark"}

		found, err := Exists(ctx, db, s)
		require.NoError(t, err)
		assert.False(t, found)

		if err := Insert(ctx, db, s); err != nil {
			return err
		}

		found, err = Exists(ctx, db, s)
		require.NoError(t, err)
		assert.True(t, found)
		return nil
	})
	require.NoError(t, err)
}

func TestSingleColumnKeyRoundTrip(t *testing.T) {
	q := newRecordQueue(t)

	err := q.InDatabase(context.Background(), func(ctx context.Context, db *DB) error {
		if err := Insert(ctx, db, &setting{Key: "lang", Value: "en"}); err != nil {
			return err
		}

		got, found, err := FetchByKey[setting](ctx, db, "lang")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "en", got.Value)

		got.Value = "fr"
		affected, err := Update(ctx, db, got)
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)
		return nil
	})
	require.NoError(t, err)
}

func TestCompositeKey(t *testing.T) {
	q := newRecordQueue(t)

	err := q.InDatabase(context.Background(), func(ctx context.Context, db *DB) error {
		e := &enrollment{StudentID: 1, CourseID: 2, Grade: "B"}
		if err := Insert(ctx, db, e); err != nil {
			return err
		}

		got, found, err := FetchByKey[enrollment](ctx, db, 1, 2)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "B", got.Grade)

		// A key value per declared column is required.
		_, _, err = FetchByKey[enrollment](ctx, db, 1)
		assert.ErrorIs(t, err, ErrUnsupported)

		// Partially unset composite keys never execute.
		_, err = Delete(ctx, db, &enrollment{StudentID: 1, Grade: "B"})
		assert.ErrorIs(t, err, ErrUnsupported)

		affected, err := Delete(ctx, db, e)
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)
		return nil
	})
	require.NoError(t, err)
}
