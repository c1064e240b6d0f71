package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrInvalidInput wraps every validation failure of a TransactionInput.
var ErrInvalidInput = errors.New("invalid transaction")

// amountPattern accepts a signed decimal with at most two fraction digits.
var amountPattern = regexp.MustCompile(`^[-+]?\d+(\.\d{1,2})?$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		return amountPattern.MatchString(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// TransactionInput is a transaction as submitted by a client or read from an
// import file. Amounts accept JSON numbers or numeric strings.
type TransactionInput struct {
	Date              string      `json:"date" validate:"required,datetime=2006-01-02"`
	Merchant          string      `json:"merchant" validate:"required"`
	Location          string      `json:"location"`
	Amount            json.Number `json:"amount" validate:"required,amount"`
	Description       string      `json:"description"`
	Category          string      `json:"category" validate:"required"`
	Subcategory       string      `json:"subcategory"`
	PaymentAccount    string      `json:"payment_account"`
	TransactionMethod string      `json:"transaction_method"`

	ReimbursedAmount json.Number `json:"reimbursed_amount,omitempty" validate:"omitempty,amount"`
	UnitCount        json.Number `json:"unit_count,omitempty" validate:"omitempty,number"`
	UnitType         string      `json:"unit_type,omitempty"`
	UnitPrice        json.Number `json:"unit_price,omitempty" validate:"omitempty,number"`

	PayPeriodStart string `json:"pay_period_start,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PayPeriodEnd   string `json:"pay_period_end,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Validate checks the input against its tags.
func (in TransactionInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// Transaction validates the input and converts it for sheet. Fields that do
// not belong to the sheet's variant are dropped.
func (in TransactionInput) Transaction(sheet Sheet) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}

	date, err := civil.ParseDate(in.Date)
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: date: %v", ErrInvalidInput, err)
	}
	amount, err := decimal.NewFromString(in.Amount.String())
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: amount: %v", ErrInvalidInput, err)
	}

	tx := Transaction{
		Date:              date,
		Merchant:          strings.TrimSpace(in.Merchant),
		Location:          strings.TrimSpace(in.Location),
		Amount:            amount,
		Description:       in.Description,
		Category:          strings.TrimSpace(in.Category),
		Subcategory:       strings.TrimSpace(in.Subcategory),
		PaymentAccount:    in.PaymentAccount,
		TransactionMethod: in.TransactionMethod,
	}

	if sheet.IsExpense() {
		details := &ExpenseDetails{UnitType: in.UnitType}
		if details.ReimbursedAmount, err = optionalAmount(in.ReimbursedAmount); err != nil {
			return Transaction{}, err
		}
		if details.UnitCount, err = optionalDecimal(in.UnitCount); err != nil {
			return Transaction{}, err
		}
		if details.UnitPrice, err = optionalDecimal(in.UnitPrice); err != nil {
			return Transaction{}, err
		}
		tx.Expense = details
	} else {
		details := &IncomeDetails{}
		if details.PayPeriodStart, err = optionalDate(in.PayPeriodStart); err != nil {
			return Transaction{}, err
		}
		if details.PayPeriodEnd, err = optionalDate(in.PayPeriodEnd); err != nil {
			return Transaction{}, err
		}
		tx.Income = details
	}
	return tx, nil
}

// Transactions converts a batch, reporting the position of the first invalid
// entry.
func Transactions(sheet Sheet, inputs []TransactionInput) ([]Transaction, error) {
	out := make([]Transaction, len(inputs))
	for i, in := range inputs {
		tx, err := in.Transaction(sheet)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i+1, err)
		}
		out[i] = tx
	}
	return out, nil
}

func optionalAmount(n json.Number) (decimal.Decimal, error) {
	d, err := optionalDecimal(n)
	if err != nil || d == nil {
		return decimal.Zero, err
	}
	return *d, nil
}

func optionalDecimal(n json.Number) (*decimal.Decimal, error) {
	if n == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return &d, nil
}

func optionalDate(s string) (*civil.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return &d, nil
}
