package repository

import (
	"crypto/subtle"

	"github.com/tirasundara/ledger-service/internal/domain"
)

func credentialMatches(account *domain.Account, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(account.CredentialHash()), []byte(hash)) == 1
}
