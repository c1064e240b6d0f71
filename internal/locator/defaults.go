package locator

type group struct {
	name    string
	members []string
}

var defaultExpenseCategories = []group{
	{"Food", []string{"Groceries", "Restaurants", "Coffee"}},
	{"Housing", []string{"Rent", "Utilities", "Maintenance"}},
	{"Transport", []string{"Fuel", "Public Transit", "Parking"}},
	{"Health", []string{"Pharmacy", "Dental"}},
	{"Entertainment", []string{"Subscriptions", "Events"}},
	{"hidden", []string{"Transfer", "Card Payment"}},
}

var defaultIncomeCategories = []group{
	{"Work", []string{"Salary", "Bonus"}},
	{"Business", []string{"Sale", "Grant"}},
	{"Personal", []string{"Gift", "Refund", "Interest"}},
}

var defaultPaymentMethods = []group{
	{"Transaction Account", []string{"Credit Card", "Bank Account", "Cash"}},
	{"Payment Method", []string{"Debit", "Credit", "E-Transfer", "Cheque", "Direct Deposit"}},
}
