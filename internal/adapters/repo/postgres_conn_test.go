package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"tg-media-bot/internal/domain"
)

type fakeDB struct {
	execErr error
	pingErr error
	closed  bool
	execs   int
}

func (f *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	f.execs++
	return pgconn.NewCommandTag("CREATE TABLE"), f.execErr
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{err: errors.New("not implemented")}
}

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }

func (f *fakeDB) Close() { f.closed = true }

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

type fakeConnector struct {
	dbs   []*fakeDB
	calls int
	err   error
}

func (c *fakeConnector) connect(context.Context) (DB, error) {
	if c.err != nil {
		return nil, c.err
	}
	db := &fakeDB{}
	if c.calls < len(c.dbs) {
		db = c.dbs[c.calls]
	}
	c.calls++
	return db, nil
}

func TestInitializeCreatesSchema(t *testing.T) {
	db := &fakeDB{}
	conn := &fakeConnector{dbs: []*fakeDB{db}}
	p := NewPostgres(conn.connect, zerolog.Nop(), Options{})

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if db.execs != len(schema) {
		t.Fatalf("ожидали %d DDL, выполнено %d", len(schema), db.execs)
	}
}

func TestInitializeSwallowsSchemaErrorUnlessStrict(t *testing.T) {
	schemaErr := &pgconn.PgError{Code: "42501", Message: "permission denied"}

	lenient := NewPostgres((&fakeConnector{dbs: []*fakeDB{{execErr: schemaErr}}}).connect, zerolog.Nop(), Options{})
	if err := lenient.Initialize(context.Background()); err != nil {
		t.Fatalf("без StrictSchema ошибка схемы не должна возвращаться: %v", err)
	}

	strict := NewPostgres((&fakeConnector{dbs: []*fakeDB{{execErr: schemaErr}}}).connect, zerolog.Nop(), Options{StrictSchema: true})
	if err := strict.Initialize(context.Background()); !errors.Is(err, schemaErr) {
		t.Fatalf("в StrictSchema ожидали ошибку схемы, получили %v", err)
	}
}

func TestInitializeConnectionFailure(t *testing.T) {
	p := NewPostgres((&fakeConnector{err: errors.New("refused")}).connect, zerolog.Nop(), Options{})
	if err := p.Initialize(context.Background()); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("ожидали ErrUnavailable, получили %v", err)
	}
}

func TestReconnectClosesPreviousHandle(t *testing.T) {
	first, second := &fakeDB{}, &fakeDB{}
	conn := &fakeConnector{dbs: []*fakeDB{first, second}}
	p := NewPostgres(conn.connect, zerolog.Nop(), Options{})
	ctx := context.Background()

	if err := p.Reconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.Reconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if !first.closed {
		t.Fatal("старое подключение должно быть закрыто")
	}
	if second.closed {
		t.Fatal("новое подключение не должно быть закрыто")
	}
	if conn.calls != 2 {
		t.Fatalf("ожидали 2 подключения, получили %d", conn.calls)
	}
}

func TestCheckConnectionReconnectsOnFailedPing(t *testing.T) {
	broken := &fakeDB{pingErr: errors.New("broken pipe")}
	healthy := &fakeDB{}
	conn := &fakeConnector{dbs: []*fakeDB{broken, healthy}}
	p := NewPostgres(conn.connect, zerolog.Nop(), Options{})
	ctx := context.Background()
	if err := p.Reconnect(ctx); err != nil {
		t.Fatal(err)
	}

	p.checkConnection(ctx)
	if !broken.closed || conn.calls != 2 {
		t.Fatalf("ожидали переподключение: closed=%v calls=%d", broken.closed, conn.calls)
	}

	p.checkConnection(ctx)
	if conn.calls != 2 {
		t.Fatal("здоровое подключение не должно пересоздаваться")
	}
}

func TestOperationsWithoutConnectionAreUnavailable(t *testing.T) {
	p := NewPostgres(nil, zerolog.Nop(), Options{})
	ctx := context.Background()
	if _, err := p.Lookup(ctx, "u"); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("ожидали ErrUnavailable, получили %v", err)
	}
	if _, err := p.Counts(ctx); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("ожидали ErrUnavailable, получили %v", err)
	}
	if err := p.Reconnect(ctx); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("ожидали ErrUnavailable без коннектора, получили %v", err)
	}
}
