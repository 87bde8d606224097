package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/pregram/pregram/models"
	"github.com/pregram/pregram/mq"
	"github.com/pregram/pregram/service"
	"github.com/pregram/pregram/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func testAccount(id, username string) models.Account {
	return models.Account{Id: id, OwnerId: "user1", Username: username, AvatarURI: "data:image/svg+xml;base64,AA"}
}

func TestAddAccount_FirstBecomesCurrent(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	mockStore.On("ListAccounts", ctx, user.Id).Return([]models.Account{}, nil)
	mockStore.On("PutAccount", ctx, mock.MatchedBy(func(a models.Account) bool {
		return a.Username == "my_shop" && a.OwnerId == user.Id && a.AvatarURI != ""
	})).Return(nil)
	mockStore.On("SetCurrentAccount", ctx, user.Id, mock.Anything).Return(nil)

	account, err := svc.AddAccount(ctx, user, "my_shop")
	assert.NoError(t, err)
	assert.NotEmpty(t, account.Id)
	mockStore.AssertCalled(t, "SetCurrentAccount", ctx, user.Id, account.Id)
}

func TestAddAccount_QuotaExceeded(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser() // MaxAccountSlots = 1

	mockStore.On("ListAccounts", ctx, user.Id).Return([]models.Account{testAccount("acct1", "existing")}, nil)

	_, err := svc.AddAccount(ctx, user, "second")
	assert.ErrorIs(t, err, service.ErrQuotaExceeded)
	mockStore.AssertNotCalled(t, "PutAccount", mock.Anything, mock.Anything)
}

func TestAddAccount_DuplicateUsername(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()
	user.MaxAccountSlots = 3

	mockStore.On("ListAccounts", ctx, user.Id).Return([]models.Account{testAccount("acct1", "taken")}, nil)

	_, err := svc.AddAccount(ctx, user, "taken")
	assert.Error(t, err)
	mockStore.AssertNotCalled(t, "PutAccount", mock.Anything, mock.Anything)
}

func TestAddAccount_InvalidUsername(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)

	_, err := svc.AddAccount(context.Background(), testUser(), "Not A Handle!")
	assert.Error(t, err)
	mockStore.AssertNotCalled(t, "ListAccounts", mock.Anything, mock.Anything)
}

func TestPurchaseSlot(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	mockStore.On("IncrementMaxAccountSlots", ctx, user.Provider, user.ProviderId, 1).Return(nil)

	slots, err := svc.PurchaseSlot(ctx, user)
	assert.NoError(t, err)
	assert.Equal(t, 2, slots)
}

func TestRemoveAccount_LastAccountRejected(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	mockStore.On("ListAccounts", ctx, user.Id).Return([]models.Account{testAccount("acct1", "only")}, nil)

	err := svc.RemoveAccount(ctx, user, "acct1")
	assert.ErrorIs(t, err, service.ErrLastAccount)
	mockStore.AssertNotCalled(t, "DeleteAccount", mock.Anything, mock.Anything, mock.Anything)
}

func TestRemoveAccount_UnknownAccount(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	accounts := []models.Account{testAccount("acct1", "one"), testAccount("acct2", "two")}
	mockStore.On("ListAccounts", ctx, user.Id).Return(accounts, nil)

	err := svc.RemoveAccount(ctx, user, "ghost")
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestRemoveAccount_QueuesPurgeAndRepairsFocus(t *testing.T) {
	svc, mockStore, _, mockMQ, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	accounts := []models.Account{testAccount("acct1", "one"), testAccount("acct2", "two")}
	mockStore.On("ListAccounts", ctx, user.Id).Return(accounts, nil)
	mockStore.On("DeleteAccount", ctx, user.Id, "acct2").Return(nil)
	mockStore.On("GetCurrentAccount", ctx, user.Id).Return("acct2", nil)
	mockStore.On("SetCurrentAccount", ctx, user.Id, "acct1").Return(nil)

	sendCalled := wrapMockWithSignal(mockMQ.On("SendPurge", mock.Anything, mq.PurgeAccountJob{
		AccountId: "acct2",
		OwnerId:   user.Id,
	}).Return(nil))

	err := svc.RemoveAccount(ctx, user, "acct2")
	assert.NoError(t, err)
	mockStore.AssertCalled(t, "SetCurrentAccount", ctx, user.Id, "acct1")

	// Purge job is queued asynchronously
	select {
	case <-sendCalled:
	case <-time.After(1 * time.Second):
		assert.Fail(t, "expected a purge message on the queue")
	}
}

func TestCurrentAccount_RepairsDanglingPointer(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	accounts := []models.Account{testAccount("acct1", "one"), testAccount("acct2", "two")}
	mockStore.On("ListAccounts", ctx, user.Id).Return(accounts, nil)
	mockStore.On("GetCurrentAccount", ctx, user.Id).Return("removedAcct", nil)
	mockStore.On("SetCurrentAccount", ctx, user.Id, "acct1").Return(nil)

	account, err := svc.CurrentAccount(ctx, user)
	assert.NoError(t, err)
	assert.Equal(t, "acct1", account.Id)
	mockStore.AssertCalled(t, "SetCurrentAccount", ctx, user.Id, "acct1")
}

func TestCurrentAccount_NoAccounts(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	mockStore.On("ListAccounts", ctx, user.Id).Return([]models.Account{}, nil)

	_, err := svc.CurrentAccount(ctx, user)
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestSetCurrentAccount_FlushesBeforeSwitch(t *testing.T) {
	svc, mockStore, _, _, flusher := setupService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	user := testUser()

	// Flush blocks until the flusher goroutine acknowledges it
	go flusher.Run(ctx)

	accounts := []models.Account{testAccount("acct1", "one"), testAccount("acct2", "two")}
	mockStore.On("ListAccounts", ctx, user.Id).Return(accounts, nil)
	mockStore.On("SetCurrentAccount", ctx, user.Id, "acct2").Return(nil)

	err := svc.SetCurrentAccount(ctx, user, "acct2")
	assert.NoError(t, err)
	mockStore.AssertCalled(t, "SetCurrentAccount", ctx, user.Id, "acct2")
}

func TestSetCurrentAccount_UnknownAccount(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	mockStore.On("ListAccounts", ctx, user.Id).Return([]models.Account{testAccount("acct1", "one")}, nil)

	err := svc.SetCurrentAccount(ctx, user, "ghost")
	assert.ErrorIs(t, err, store.ErrItemNotFound)
}

func TestEnsureDefaultAccount_DerivesHandleFromLogin(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser() // Username "tester@example.com"

	mockStore.On("ListAccounts", ctx, user.Id).Return([]models.Account{}, nil)
	mockStore.On("PutAccount", ctx, mock.MatchedBy(func(a models.Account) bool {
		return a.Username == "tester"
	})).Return(nil)
	mockStore.On("SetCurrentAccount", ctx, user.Id, mock.Anything).Return(nil)

	svc.EnsureDefaultAccount(ctx, user)
	mockStore.AssertCalled(t, "PutAccount", ctx, mock.Anything)
}

func TestEnsureDefaultAccount_SkipsWhenAccountsExist(t *testing.T) {
	svc, mockStore, _, _, _ := setupService(t)
	ctx := context.Background()
	user := testUser()

	mockStore.On("ListAccounts", ctx, user.Id).Return([]models.Account{testAccount("acct1", "one")}, nil)

	svc.EnsureDefaultAccount(ctx, user)
	mockStore.AssertNotCalled(t, "PutAccount", mock.Anything, mock.Anything)
}
