package repo

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestOpenMemory(t *testing.T) {
	store, err := Open(context.Background(), OpenOptions{Driver: "Memory"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, ok := store.(*Memory); !ok {
		t.Fatalf("ожидали *Memory, получили %T", store)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
}

func TestOpenValidation(t *testing.T) {
	if _, err := Open(context.Background(), OpenOptions{Driver: "mysql"}, zerolog.Nop()); err == nil {
		t.Fatal("ожидали ошибку для неизвестного драйвера")
	}
	if _, err := Open(context.Background(), OpenOptions{Driver: "postgres"}, zerolog.Nop()); err == nil {
		t.Fatal("ожидали ошибку без DSN")
	}
}
