package model

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
)

func fakeCustomer() Customer {
	return Customer{
		ID:             gofakeit.UUID(),
		BotID:          "bot-1",
		PlatformUserID: int64(gofakeit.Number(1, 1_000_000)),
		ChatID:         int64(gofakeit.Number(1, 1_000_000)),
		FirstName:      gofakeit.FirstName(),
		LastName:       gofakeit.LastName(),
		Username:       gofakeit.Username(),
		PhoneNumber:    gofakeit.Phone(),
		Email:          gofakeit.Email(),
	}
}

func TestFillFrom_EmptyFieldsAreFilled(t *testing.T) {
	src := fakeCustomer()
	dst := Customer{ID: "existing", BotID: src.BotID, PlatformUserID: src.PlatformUserID}

	changed := dst.FillFrom(src)

	assert.True(t, changed)
	assert.Equal(t, src.FirstName, dst.FirstName)
	assert.Equal(t, src.PhoneNumber, dst.PhoneNumber)
	assert.Equal(t, src.Email, dst.Email)
	assert.Equal(t, src.ChatID, dst.ChatID)
	// Identity fields are never touched
	assert.Equal(t, "existing", dst.ID)
}

func TestFillFrom_ExistingFieldsWin(t *testing.T) {
	dst := fakeCustomer()
	orig := dst

	changed := dst.FillFrom(fakeCustomer())

	// First non-null wins: a fully populated profile never changes
	assert.False(t, changed)
	assert.Equal(t, orig, dst)
}

func TestFillFrom_EmptySourceIsNoop(t *testing.T) {
	dst := fakeCustomer()
	orig := dst

	changed := dst.FillFrom(Customer{})

	assert.False(t, changed)
	assert.Equal(t, orig, dst)
}
