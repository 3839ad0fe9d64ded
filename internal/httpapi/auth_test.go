package httpapi

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"frentedecaixa/backend/internal/domain"
	"frentedecaixa/backend/internal/store"
)

type fakeDirectory struct {
	employees map[string]domain.Employee
}

func (d *fakeDirectory) GetEmployeeByUsername(_ context.Context, username string) (*domain.Employee, error) {
	employee, ok := d.employees[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &employee, nil
}

func newFakeDirectory(t *testing.T) *fakeDirectory {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("segredo1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &fakeDirectory{employees: map[string]domain.Employee{
		"maria": {ID: "emp_maria", Name: "Maria", Username: "maria", Role: domain.RoleGerente, Active: true, PasswordHash: string(hash)},
		"joao":  {ID: "emp_joao", Name: "João", Username: "joao", Role: domain.RoleCaixa, Active: false, PasswordHash: string(hash)},
	}}
}

func TestLoginAndParseToken(t *testing.T) {
	auth := NewAuthManager("unit-test-secret", time.Hour, newFakeDirectory(t))

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "  Maria ", Password: "segredo1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != domain.RoleGerente {
		t.Fatalf("role: %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "maria" || actor.Role != domain.RoleGerente {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejections(t *testing.T) {
	auth := NewAuthManager("unit-test-secret", time.Hour, newFakeDirectory(t))
	ctx := context.Background()

	if _, err := auth.Login(ctx, domain.LoginRequest{Username: "maria", Password: "errada"}); err == nil {
		t.Fatal("wrong password accepted")
	}
	if _, err := auth.Login(ctx, domain.LoginRequest{Username: "ninguem", Password: "segredo1"}); err == nil {
		t.Fatal("unknown user accepted")
	}
	if _, err := auth.Login(ctx, domain.LoginRequest{Username: "joao", Password: "segredo1"}); err == nil {
		t.Fatal("inactive account accepted")
	}
	if _, err := auth.Login(ctx, domain.LoginRequest{Username: "", Password: ""}); err == nil {
		t.Fatal("blank credentials accepted")
	}
}

func TestParseTokenRejections(t *testing.T) {
	auth := NewAuthManager("unit-test-secret", time.Hour, newFakeDirectory(t))

	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatal("garbage token accepted")
	}

	other := NewAuthManager("another-secret", time.Hour, newFakeDirectory(t))
	resp, err := other.Login(context.Background(), domain.LoginRequest{Username: "maria", Password: "segredo1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := auth.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("token signed with another secret accepted")
	}

	expired := NewAuthManager("unit-test-secret", time.Nanosecond, newFakeDirectory(t))
	resp, err = expired.Login(context.Background(), domain.LoginRequest{Username: "maria", Password: "segredo1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := expired.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("expired token accepted")
	}
}
