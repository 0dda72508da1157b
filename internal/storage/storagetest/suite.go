// Package storagetest holds the behaviour every storage.Store backend must
// share. Backends run it from their own tests with suite.Run.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"blackout/internal/core"
	"blackout/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var emailSeq atomic.Int64

// NewOwner registers a throwaway user and returns its id.
func NewOwner(ctx context.Context, s storage.Store) (core.OwnerID, error) {
	n := emailSeq.Add(1)
	u, err := s.Users().CreateUser(ctx, core.User{
		Name:         fmt.Sprintf("Owner %d", n),
		Email:        fmt.Sprintf("owner%d@example.com", n),
		PasswordHash: "x",
	})
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

type StoreSuite struct {
	suite.Suite

	// NewStore returns an empty store for one test.
	NewStore func() (storage.Store, error)

	ctx   context.Context
	store storage.Store
	owner core.OwnerID
	other core.OwnerID
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	store, err := s.NewStore()
	require.NoError(s.T(), err)
	s.store = store

	s.owner, err = NewOwner(s.ctx, store)
	require.NoError(s.T(), err)
	s.other, err = NewOwner(s.ctx, store)
	require.NoError(s.T(), err)
}

func (s *StoreSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *StoreSuite) insert(owner core.OwnerID, kind core.Kind, cents int64, date core.Date) core.Record {
	var rec core.Record
	err := s.store.WithinOwner(s.ctx, owner, func(tx storage.Tx) error {
		var err error
		rec, err = tx.Insert(s.ctx, core.Record{
			Kind:        kind,
			Value:       core.Cents(cents),
			Category:    "Salário",
			Description: "test record",
			Date:        date,
		})
		return err
	})
	require.NoError(s.T(), err)
	return rec
}

func (s *StoreSuite) view(owner core.OwnerID, fn func(tx storage.Tx)) {
	err := s.store.View(s.ctx, owner, func(tx storage.Tx) error {
		fn(tx)
		return nil
	})
	require.NoError(s.T(), err)
}

func (s *StoreSuite) TestInsertAndGet() {
	rec := s.insert(s.owner, core.KindIncome, 10000, core.NewDate(2024, 11, 1))
	s.NotZero(rec.ID)
	s.Equal(s.owner, rec.Owner)
	s.False(rec.CreatedAt.IsZero())

	s.view(s.owner, func(tx storage.Tx) {
		got, err := tx.Get(s.ctx, core.KindIncome, rec.ID)
		require.NoError(s.T(), err)
		assert.Equal(s.T(), int64(10000), got.Value.Cents)
		assert.Equal(s.T(), "2024-11-01", got.Date.String())
		assert.Equal(s.T(), "Salário", got.Category)
		assert.Equal(s.T(), core.KindIncome, got.Kind)
	})
}

func (s *StoreSuite) TestOwnershipIsolation() {
	rec := s.insert(s.owner, core.KindExpense, 500, core.NewDate(2024, 11, 2))

	s.view(s.other, func(tx storage.Tx) {
		_, err := tx.Get(s.ctx, core.KindExpense, rec.ID)
		assert.ErrorIs(s.T(), err, core.ErrNotFound)

		list, err := tx.List(s.ctx, core.KindExpense)
		require.NoError(s.T(), err)
		assert.Empty(s.T(), list)

		sum, err := tx.Sum(s.ctx, core.KindExpense)
		require.NoError(s.T(), err)
		assert.Zero(s.T(), sum.Cents)
	})

	err := s.store.WithinOwner(s.ctx, s.other, func(tx storage.Tx) error {
		_, err := tx.Update(s.ctx, rec)
		assert.ErrorIs(s.T(), err, core.ErrNotFound)
		deleted, err := tx.Delete(s.ctx, core.KindExpense, rec.ID)
		assert.NoError(s.T(), err)
		assert.False(s.T(), deleted)
		return nil
	})
	require.NoError(s.T(), err)
}

func (s *StoreSuite) TestListOrder() {
	a := s.insert(s.owner, core.KindIncome, 100, core.NewDate(2024, 10, 1))
	b := s.insert(s.owner, core.KindIncome, 200, core.NewDate(2024, 12, 1))
	c := s.insert(s.owner, core.KindIncome, 300, core.NewDate(2024, 12, 1))

	s.view(s.owner, func(tx storage.Tx) {
		list, err := tx.List(s.ctx, core.KindIncome)
		require.NoError(s.T(), err)
		require.Len(s.T(), list, 3)
		assert.Equal(s.T(), []int64{c.ID, b.ID, a.ID}, []int64{list[0].ID, list[1].ID, list[2].ID})
	})
}

func (s *StoreSuite) TestUpdateReplacesFields() {
	rec := s.insert(s.owner, core.KindExpense, 500, core.NewDate(2024, 11, 2))

	rec.Value = core.Cents(750)
	rec.Category = "Transporte"
	rec.Description = "Uber"
	rec.Date = core.NewDate(2024, 11, 3)
	err := s.store.WithinOwner(s.ctx, s.owner, func(tx storage.Tx) error {
		_, err := tx.Update(s.ctx, rec)
		return err
	})
	require.NoError(s.T(), err)

	s.view(s.owner, func(tx storage.Tx) {
		got, err := tx.Get(s.ctx, core.KindExpense, rec.ID)
		require.NoError(s.T(), err)
		assert.Equal(s.T(), int64(750), got.Value.Cents)
		assert.Equal(s.T(), "Transporte", got.Category)
		assert.Equal(s.T(), "Uber", got.Description)
		assert.Equal(s.T(), "2024-11-03", got.Date.String())
	})
}

func (s *StoreSuite) TestUpdateMissing() {
	err := s.store.WithinOwner(s.ctx, s.owner, func(tx storage.Tx) error {
		_, err := tx.Update(s.ctx, core.Record{ID: 999999, Kind: core.KindIncome, Value: core.Cents(1),
			Category: "c", Description: "d", Date: core.NewDate(2024, 1, 1)})
		return err
	})
	s.ErrorIs(err, core.ErrNotFound)
}

func (s *StoreSuite) TestRejectsInvalidRecords() {
	rec := s.insert(s.owner, core.KindExpense, 500, core.NewDate(2024, 11, 2))

	err := s.store.WithinOwner(s.ctx, s.owner, func(tx storage.Tx) error {
		_, err := tx.Insert(s.ctx, core.Record{Kind: core.KindIncome, Value: core.Cents(100),
			Category: " ", Description: "d", Date: core.NewDate(2024, 1, 1)})
		return err
	})
	s.ErrorIs(err, core.ErrValidation)

	bad := rec
	bad.Value = core.Cents(0)
	err = s.store.WithinOwner(s.ctx, s.owner, func(tx storage.Tx) error {
		_, err := tx.Update(s.ctx, bad)
		return err
	})
	s.ErrorIs(err, core.ErrValidation)

	s.view(s.owner, func(tx storage.Tx) {
		got, err := tx.Get(s.ctx, core.KindExpense, rec.ID)
		require.NoError(s.T(), err)
		assert.Equal(s.T(), int64(500), got.Value.Cents)

		list, err := tx.List(s.ctx, core.KindIncome)
		require.NoError(s.T(), err)
		assert.Empty(s.T(), list)
	})
}

func (s *StoreSuite) TestDelete() {
	rec := s.insert(s.owner, core.KindIncome, 100, core.NewDate(2024, 10, 1))

	err := s.store.WithinOwner(s.ctx, s.owner, func(tx storage.Tx) error {
		deleted, err := tx.Delete(s.ctx, core.KindIncome, rec.ID)
		assert.True(s.T(), deleted)
		return err
	})
	require.NoError(s.T(), err)

	s.view(s.owner, func(tx storage.Tx) {
		_, err := tx.Get(s.ctx, core.KindIncome, rec.ID)
		assert.ErrorIs(s.T(), err, core.ErrNotFound)
	})
}

func (s *StoreSuite) TestSum() {
	s.insert(s.owner, core.KindIncome, 10000, core.NewDate(2024, 10, 1))
	s.insert(s.owner, core.KindIncome, 15000, core.NewDate(2024, 10, 2))
	s.insert(s.owner, core.KindExpense, 6000, core.NewDate(2024, 10, 3))
	s.insert(s.other, core.KindIncome, 99900, core.NewDate(2024, 10, 3))

	s.view(s.owner, func(tx storage.Tx) {
		income, err := tx.Sum(s.ctx, core.KindIncome)
		require.NoError(s.T(), err)
		expenses, err := tx.Sum(s.ctx, core.KindExpense)
		require.NoError(s.T(), err)
		assert.Equal(s.T(), int64(25000), income.Cents)
		assert.Equal(s.T(), int64(6000), expenses.Cents)
	})
}

func (s *StoreSuite) TestRollbackOnError() {
	boom := errors.New("boom")
	err := s.store.WithinOwner(s.ctx, s.owner, func(tx storage.Tx) error {
		_, err := tx.Insert(s.ctx, core.Record{Kind: core.KindIncome, Value: core.Cents(100),
			Category: "c", Description: "d", Date: core.NewDate(2024, 1, 1)})
		require.NoError(s.T(), err)

		// The scope sees its own write.
		sum, err := tx.Sum(s.ctx, core.KindIncome)
		require.NoError(s.T(), err)
		assert.Equal(s.T(), int64(100), sum.Cents)
		return boom
	})
	s.ErrorIs(err, boom)

	s.view(s.owner, func(tx storage.Tx) {
		list, err := tx.List(s.ctx, core.KindIncome)
		require.NoError(s.T(), err)
		assert.Empty(s.T(), list)
	})
}

func (s *StoreSuite) TestViewIsReadOnly() {
	err := s.store.View(s.ctx, s.owner, func(tx storage.Tx) error {
		_, err := tx.Insert(s.ctx, core.Record{Kind: core.KindIncome, Value: core.Cents(100),
			Category: "c", Description: "d", Date: core.NewDate(2024, 1, 1)})
		return err
	})
	s.ErrorIs(err, storage.ErrReadOnly)
}

func (s *StoreSuite) TestUsers() {
	users := s.store.Users()
	u, err := users.CreateUser(s.ctx, core.User{
		Name:         "Ana",
		Email:        "  Ana@Example.com ",
		PhoneNumber:  "5511999999999",
		DateOfBirth:  core.NewDate(1990, 5, 17),
		PasswordHash: "hash",
	})
	require.NoError(s.T(), err)
	s.NotZero(u.ID)
	s.Equal("ana@example.com", u.Email)

	_, err = users.CreateUser(s.ctx, core.User{Name: "Other", Email: "ANA@example.com", PasswordHash: "h"})
	s.ErrorIs(err, storage.ErrEmailTaken)

	byEmail, err := users.GetUserByEmail(s.ctx, "ana@EXAMPLE.com")
	require.NoError(s.T(), err)
	s.Equal(u.ID, byEmail.ID)
	s.Equal("hash", byEmail.PasswordHash)
	s.Equal("1990-05-17", byEmail.DateOfBirth.String())

	byID, err := users.GetUserByID(s.ctx, u.ID)
	require.NoError(s.T(), err)
	s.Equal("Ana", byID.Name)

	_, err = users.GetUserByID(s.ctx, core.OwnerID(987654321))
	s.ErrorIs(err, core.ErrNotFound)
}
