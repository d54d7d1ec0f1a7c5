package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DemoTransaction is a seed transaction that refers to its account by
// position in DemoLedger.Accounts, since ids are assigned on write.
type DemoTransaction struct {
	AccountIndex int
	Transaction  Transaction
}

// DemoLedger is the starter data written for a newly registered user.
type DemoLedger struct {
	Accounts     []Account
	Holdings     []Holding
	Transactions []DemoTransaction
}

// NewDemoLedger builds the seed data with dates relative to today.
// Account balances already include the seeded transactions.
func NewDemoLedger(today time.Time) DemoLedger {
	day := func(offset int) string {
		return today.AddDate(0, 0, offset).Format(DateLayout)
	}
	return DemoLedger{
		Accounts: []Account{
			{Name: "CTBC Bank", Type: AccountTypeBank, Balance: decimal.NewFromInt(150000), Currency: "TWD"},
			{Name: "Wallet Cash", Type: AccountTypeCash, Balance: decimal.NewFromInt(3500), Currency: "TWD"},
			{Name: "Firstrade", Type: AccountTypeInvestment, Balance: decimal.NewFromInt(5000), Currency: "USD"},
		},
		Holdings: []Holding{
			{Symbol: "2330.TW", Name: "TSMC", Quantity: decimal.NewFromInt(1000), AvgCost: decimal.NewFromInt(500), CurrentPrice: decimal.NewFromInt(500), Currency: "TWD"},
			{Symbol: "AAPL", Name: "Apple Inc.", Quantity: decimal.NewFromInt(10), AvgCost: decimal.NewFromInt(150), CurrentPrice: decimal.NewFromInt(150), Currency: "USD"},
			{Symbol: "0050.TW", Name: "Yuanta 0050", Quantity: decimal.NewFromInt(2000), AvgCost: decimal.NewFromInt(120), CurrentPrice: decimal.NewFromInt(120), Currency: "TWD"},
		},
		Transactions: []DemoTransaction{
			{AccountIndex: 0, Transaction: Transaction{Date: day(0), Amount: decimal.NewFromInt(50000), Type: TransactionTypeIncome, Category: "Salary", Note: "Monthly Salary"}},
			{AccountIndex: 1, Transaction: Transaction{Date: day(0), Amount: decimal.NewFromInt(120), Type: TransactionTypeExpense, Category: "Food", Note: "Lunch"}},
			{AccountIndex: 1, Transaction: Transaction{Date: day(-1), Amount: decimal.NewFromInt(50), Type: TransactionTypeExpense, Category: "Transportation", Note: "MRT"}},
			{AccountIndex: 0, Transaction: Transaction{Date: day(-2), Amount: decimal.NewFromInt(2000), Type: TransactionTypeExpense, Category: "Utilities", Note: "Internet Bill"}},
		},
	}
}
