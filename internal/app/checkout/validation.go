package checkout

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"checkout/internal/domain"
)

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for an empty tag name.
	_ = v.RegisterValidation("cpf", validCPF)
	return v
}

// validCPF accepts a Brazilian CPF with or without punctuation: 11 digits,
// not all identical, with both check digits correct.
func validCPF(fl validator.FieldLevel) bool {
	digits := make([]int, 0, 11)
	for _, r := range fl.Field().String() {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) != 11 {
		return false
	}

	same := true
	for _, d := range digits[1:] {
		if d != digits[0] {
			same = false
			break
		}
	}
	if same {
		return false
	}

	return checkDigit(digits, 9) == digits[9] && checkDigit(digits, 10) == digits[10]
}

func checkDigit(digits []int, length int) int {
	sum := 0
	for i := 0; i < length; i++ {
		sum += digits[i] * (length + 1 - i)
	}
	rest := (sum * 10) % 11
	if rest == 10 {
		return 0
	}
	return rest
}

// validationError translates validator failures into the user-facing
// messages the storefront shows.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &domain.ValidationError{Fields: map[string]string{"request": "Todos os campos são obrigatórios"}}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		switch {
		case fe.Tag() == "required":
			fields[fe.Field()] = "Todos os campos são obrigatórios"
		case fe.Tag() == "email":
			fields[fe.Field()] = "Email inválido"
		case fe.Tag() == "cpf":
			fields[fe.Field()] = "CPF inválido"
		case fe.Tag() == "gt":
			fields[fe.Field()] = "Valor inválido"
		default:
			fields[fe.Field()] = "Campo inválido"
		}
	}
	return &domain.ValidationError{Fields: fields}
}
