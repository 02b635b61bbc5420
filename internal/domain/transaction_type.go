package domain

import "fmt"

// TransactionType is one member of the closed catalog of ledger record kinds
type TransactionType struct {
	code int
	name string
}

var (
	Opening     = TransactionType{1, "Opening"}
	Balance     = TransactionType{2, "Balance"}
	Withdraw    = TransactionType{3, "Withdraw"}
	Deposit     = TransactionType{4, "Deposit"}
	Interest    = TransactionType{5, "Interest"}
	Fees        = TransactionType{6, "Fees"}
	TransferOut = TransactionType{7, "Transfer out"}
	TransferIn  = TransactionType{8, "Transfer in"}
)

var transactionTypes = []TransactionType{
	Opening,
	Balance,
	Withdraw,
	Deposit,
	Interest,
	Fees,
	TransferOut,
	TransferIn,
}

// Code returns the stable integer code used in storage
func (t TransactionType) Code() int {
	return t.code
}

func (t TransactionType) Name() string {
	return t.name
}

func (t TransactionType) String() string {
	return t.name
}

// Valid reports whether t is a member of the catalog
func (t TransactionType) Valid() bool {
	_, err := TransactionTypeFromCode(t.code)
	return err == nil
}

// TransactionTypes returns every member of the catalog ordered by code
func TransactionTypes() []TransactionType {
	all := make([]TransactionType, len(transactionTypes))
	copy(all, transactionTypes)
	return all
}

// TransactionTypeFromCode looks a catalog member up by its code
func TransactionTypeFromCode(code int) (TransactionType, error) {
	for _, t := range transactionTypes {
		if t.code == code {
			return t, nil
		}
	}
	return TransactionType{}, fmt.Errorf("unknown transaction type code %d", code)
}
