// Package memory is an in-process bill store for demos and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"walletwise/internal/bills"
	"walletwise/internal/core"
)

// User is an account the store accepts at login.
type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"nome"`
	Username string `json:"username"`
	Password string `json:"senha"`
}

type seedBill struct {
	ID           int64  `json:"account_id"`
	Description  string `json:"descricao"`
	Category     string `json:"tipo"`
	Amount       string `json:"valor"`
	DueDate      string `json:"data_vencimento"`
	Responsible  string `json:"responsavel"`
	State        string `json:"estado"`
	OwnerUserID  *int64 `json:"user_id"`
	ExternalCode *int64 `json:"campo_opcional"`
}

type seedFile struct {
	Users []User     `json:"usuarios"`
	Bills []seedBill `json:"contas"`
}

type Store struct {
	mu     sync.Mutex
	users  []User
	items  []core.Bill
	nextID int64
}

func New(users []User, items []core.Bill) *Store {
	s := &Store{users: append([]User(nil), users...), nextID: 1}
	for _, b := range items {
		s.items = append(s.items, b)
		if b.ID >= s.nextID {
			s.nextID = b.ID + 1
		}
	}
	return s
}

// NewFromFiles loads base/seed_contas.json. A missing file yields a store with
// a single demo user and no bills.
func NewFromFiles(base string) (*Store, error) {
	path := filepath.Join(base, "seed_contas.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New([]User{{ID: 1, Name: "Demo", Username: "demo", Password: "demo"}}, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	items := make([]core.Bill, 0, len(seed.Bills))
	for i, sb := range seed.Bills {
		b, err := sb.toBill()
		if err != nil {
			return nil, fmt.Errorf("seed bill %d: %w", i, err)
		}
		items = append(items, b)
	}
	return New(seed.Users, items), nil
}

func (sb seedBill) toBill() (core.Bill, error) {
	due, err := core.ParseDate(sb.DueDate)
	if err != nil {
		return core.Bill{}, err
	}
	state := core.StatePending
	if sb.State != "" {
		if state, err = core.ParsePaymentState(sb.State); err != nil {
			return core.Bill{}, err
		}
	}
	return core.Bill{
		ID:           sb.ID,
		Description:  sb.Description,
		Category:     core.Category(sb.Category),
		Amount:       core.ParseNullAmount(sb.Amount),
		DueDate:      due,
		Responsible:  sb.Responsible,
		State:        state,
		OwnerUserID:  sb.OwnerUserID,
		ExternalCode: sb.ExternalCode,
	}, nil
}

func (s *Store) Login(_ context.Context, username, password string) (bills.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) && u.Password == password {
			return bills.Identity{UserID: u.ID, Name: u.Name}, nil
		}
	}
	return bills.Identity{}, bills.ErrInvalidCredentials
}

func (s *Store) ListBills(_ context.Context) ([]core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Bill(nil), s.items...), nil
}

func (s *Store) ListBillsBetween(_ context.Context, from, to core.Date) ([]core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Bill
	for _, b := range s.items {
		if !from.IsZero() && b.DueDate.Before(from) {
			continue
		}
		if !to.IsZero() && b.DueDate.After(to) {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

// CreateBill stores a copy of b under a fresh ID.
func (s *Store) CreateBill(_ context.Context, b core.Bill) (core.Bill, error) {
	if err := b.Validate(); err != nil {
		return core.Bill{}, &bills.APIError{Status: 400, Message: err.Error()}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.nextID
	s.nextID++
	s.items = append(s.items, b)
	return b, nil
}

func (s *Store) ChangeBill(_ context.Context, c bills.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID != c.ID {
			continue
		}
		if c.Responsible != nil {
			s.items[i].Responsible = *c.Responsible
		}
		if c.OwnerUserID != nil {
			uid := *c.OwnerUserID
			s.items[i].OwnerUserID = &uid
		}
		if c.State != nil {
			s.items[i].State = *c.State
		}
		return nil
	}
	return &bills.APIError{Status: 404, Message: "Conta não encontrada"}
}
