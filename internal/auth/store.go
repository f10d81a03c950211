// Package auth implements the principal store (spec §1: "the core
// only consumes a boolean authenticated-as principal"): signup/login,
// password changes, and role grants, layered over the snapshot tree's
// guarded Principal records.
//
// Grounded on original_source/src/server_commands.py's
// change_password/emaddr/addrole/rmrole handlers for the exact
// semantics (plaintext-compare-then-replace in the original; hashed
// here since spec §7 treats "wrong password" as a policy denial that
// must not leak timing or storage of the cleartext). Hashing grounded
// on uhyunpark-hyperlicked's bcrypt usage.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/Alessandro-Salerno/NSE-Market-System/internal/domain"
	"github.com/Alessandro-Salerno/NSE-Market-System/internal/snapshot"
)

var (
	ErrUserExists     = errors.New("auth: username already taken")
	ErrUnknownUser    = errors.New("auth: no such user")
	ErrWrongPassword  = errors.New("auth: wrong password")
)

// Store authenticates and manages principals against a snapshot.Tree.
type Store struct {
	tree *snapshot.Tree
}

func NewStore(tree *snapshot.Tree) *Store {
	return &Store{tree: tree}
}

// Signup creates a new user/principal pair with a bcrypt-hashed
// password (spec §4.11 AUTH mode SIGNUP).
func (s *Store) Signup(name, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if !s.tree.AddUser(name) {
		return ErrUserExists
	}
	s.tree.WithPrincipal(name, func(p *domain.Principal) {
		p.Email = email
		p.PassHash = string(hash)
	})
	return nil
}

// Login verifies name/password (spec §4.11 AUTH mode LOGIN).
func (s *Store) Login(name, password string) error {
	var hash string
	found := s.tree.WithPrincipal(name, func(p *domain.Principal) { hash = p.PassHash })
	if !found {
		return ErrUnknownUser
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrWrongPassword
	}
	return nil
}

// ChangePassword verifies oldPassword then replaces it (spec §4.11
// `passwd`).
func (s *Store) ChangePassword(name, oldPassword, newPassword string) error {
	if err := s.Login(name, oldPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.tree.WithPrincipal(name, func(p *domain.Principal) { p.PassHash = string(hash) })
	return nil
}

// SetEmail updates a principal's contact address (spec §4.11 `emaddr`).
func (s *Store) SetEmail(name, email string) error {
	found := s.tree.WithPrincipal(name, func(p *domain.Principal) { p.Email = email })
	if !found {
		return ErrUnknownUser
	}
	return nil
}

// Rename moves a principal (and its ledger) to a new username (spec
// §4.11 `chname`).
func (s *Store) Rename(oldName, newName string) error {
	if !s.tree.RenameUser(oldName, newName) {
		return ErrUserExists
	}
	return nil
}

// AddRole grants who a role (spec §4.11 admin `addrole`).
func (s *Store) AddRole(who, role string) error {
	found := s.tree.WithPrincipal(who, func(p *domain.Principal) {
		if p.Roles == nil {
			p.Roles = make(map[string]bool)
		}
		p.Roles[role] = true
	})
	if !found {
		return ErrUnknownUser
	}
	return nil
}

// RemoveRole revokes who's role (spec §4.11 admin `rmrole`).
func (s *Store) RemoveRole(who, role string) error {
	found := s.tree.WithPrincipal(who, func(p *domain.Principal) {
		delete(p.Roles, role)
	})
	if !found {
		return ErrUnknownUser
	}
	return nil
}

// HasRole reports whether who currently holds role.
func (s *Store) HasRole(who, role string) bool {
	var has bool
	s.tree.WithPrincipal(who, func(p *domain.Principal) { has = p.HasRole(role) })
	return has
}
