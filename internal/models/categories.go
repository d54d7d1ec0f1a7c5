package models

// Categories returns the suggested categories for a transaction type.
// They are suggestions only; any category string is accepted.
func Categories(t TransactionType) []string {
	switch t {
	case TransactionTypeIncome:
		return []string{"Salary", "Bonus", "Dividend", "Investment", "Other"}
	case TransactionTypeExpense:
		return []string{"Food", "Transportation", "Housing", "Utilities", "Entertainment", "Shopping", "Health", "Education", "Travel"}
	case TransactionTypeTransfer:
		return []string{"Transfer"}
	}
	return nil
}

// AllCategories returns the suggested categories keyed by transaction type.
func AllCategories() map[TransactionType][]string {
	return map[TransactionType][]string{
		TransactionTypeIncome:   Categories(TransactionTypeIncome),
		TransactionTypeExpense:  Categories(TransactionTypeExpense),
		TransactionTypeTransfer: Categories(TransactionTypeTransfer),
	}
}
