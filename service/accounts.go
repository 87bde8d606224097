package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/pregram/pregram/models"
	"github.com/pregram/pregram/mq"
	"github.com/pregram/pregram/store"
)

func avatarFor(username string) string {
	initial := "?"
	if username != "" {
		initial = strings.ToUpper(username[:1])
	}
	return placeholderURI(32, 32, initial)
}

func (s *Service) ListAccounts(ctx context.Context, user models.User) ([]models.Account, error) {
	return s.Store.ListAccounts(ctx, user.Id)
}

func (s *Service) AddAccount(ctx context.Context, user models.User, username string) (models.Account, error) {
	if err := ValidateUsername(username); err != nil {
		return models.Account{}, err
	}

	accounts, err := s.Store.ListAccounts(ctx, user.Id)
	if err != nil {
		return models.Account{}, err
	}

	if len(accounts) >= user.MaxAccountSlots {
		return models.Account{}, ErrQuotaExceeded
	}

	for _, account := range accounts {
		if account.Username == username {
			return models.Account{}, errors.New("account already connected")
		}
	}

	accountId, err := uuid.NewV4()
	if err != nil {
		return models.Account{}, err
	}

	account := models.Account{
		Id:        accountId.String(),
		OwnerId:   user.Id,
		Username:  username,
		AvatarURI: avatarFor(username),
	}

	if err := s.Store.PutAccount(ctx, account); err != nil {
		return models.Account{}, err
	}

	// The first account becomes the current one
	if len(accounts) == 0 {
		if err := s.Store.SetCurrentAccount(ctx, user.Id, account.Id); err != nil {
			log.Printf("Failed to set current account for user %s: %v", user.Id, err)
		}
	}

	return account, nil
}

// PurchaseSlot grants one extra account slot. Payment is simulated and
// always succeeds.
func (s *Service) PurchaseSlot(ctx context.Context, user models.User) (int, error) {
	if err := s.Store.IncrementMaxAccountSlots(ctx, user.Provider, user.ProviderId, 1); err != nil {
		return 0, err
	}
	return user.MaxAccountSlots + 1, nil
}

func (s *Service) RemoveAccount(ctx context.Context, user models.User, accountId string) error {
	accounts, err := s.Store.ListAccounts(ctx, user.Id)
	if err != nil {
		return err
	}

	if len(accounts) <= 1 {
		return ErrLastAccount
	}

	found := false
	for _, account := range accounts {
		if account.Id == accountId {
			found = true
			break
		}
	}
	if !found {
		return store.ErrItemNotFound
	}

	if err := s.Store.DeleteAccount(ctx, user.Id, accountId); err != nil {
		return err
	}

	s.dropSessionForAccount(user.Id, accountId)

	// Repair the focus pointer if it pointed at the removed account
	current, err := s.Store.GetCurrentAccount(ctx, user.Id)
	if err == nil && current == accountId {
		for _, account := range accounts {
			if account.Id != accountId {
				if err := s.Store.SetCurrentAccount(ctx, user.Id, account.Id); err != nil {
					log.Printf("Failed to repair current account for user %s: %v", user.Id, err)
				}
				break
			}
		}
	}

	// Async side-effects - return to caller as soon as as store operation is done
	go func() {
		job := mq.PurgeAccountJob{AccountId: accountId, OwnerId: user.Id}
		if err := s.MQ.SendPurge(context.Background(), job); err != nil {
			log.Printf("Failed to queue purge for account %s: %v", accountId, err)
		}
	}()

	return nil
}

func (s *Service) CurrentAccount(ctx context.Context, user models.User) (models.Account, error) {
	accounts, err := s.Store.ListAccounts(ctx, user.Id)
	if err != nil {
		return models.Account{}, err
	}
	if len(accounts) == 0 {
		return models.Account{}, store.ErrItemNotFound
	}

	currentId, err := s.Store.GetCurrentAccount(ctx, user.Id)
	if err == nil {
		for _, account := range accounts {
			if account.Id == currentId {
				return account, nil
			}
		}
	} else if !errors.Is(err, store.ErrItemNotFound) {
		return models.Account{}, err
	}

	// Pointer missing or dangling: repair to the first account
	if err := s.Store.SetCurrentAccount(ctx, user.Id, accounts[0].Id); err != nil {
		log.Printf("Failed to repair current account for user %s: %v", user.Id, err)
	}
	return accounts[0], nil
}

func (s *Service) SetCurrentAccount(ctx context.Context, user models.User, accountId string) error {
	accounts, err := s.Store.ListAccounts(ctx, user.Id)
	if err != nil {
		return err
	}

	found := false
	for _, account := range accounts {
		if account.Id == accountId {
			found = true
			break
		}
	}
	if !found {
		return store.ErrItemNotFound
	}

	// Make the outgoing account's snapshot durable before the switch
	s.LayoutFlusher.Flush()

	return s.Store.SetCurrentAccount(ctx, user.Id, accountId)
}

// EnsureDefaultAccount connects a first account derived from the user's
// login name, so a fresh user lands in a usable editor.
func (s *Service) EnsureDefaultAccount(ctx context.Context, user models.User) {
	accounts, err := s.Store.ListAccounts(ctx, user.Id)
	if err != nil || len(accounts) > 0 {
		return
	}

	if _, err := s.AddAccount(ctx, user, defaultAccountUsername(user.Username)); err != nil {
		log.Printf("Failed to create default account for user %s: %v", user.Id, err)
	}
}

func defaultAccountUsername(loginName string) string {
	name, _, _ := strings.Cut(loginName, "@")
	name = strings.ToLower(name)

	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' {
			b.WriteRune(r)
		}
	}

	cleaned := strings.Trim(b.String(), ".")
	if cleaned == "" {
		cleaned = "my_account"
	}
	if len(cleaned) > maxUsernameLength {
		cleaned = cleaned[:maxUsernameLength]
	}
	return cleaned
}
