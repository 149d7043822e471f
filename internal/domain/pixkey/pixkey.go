package pixkey

import "strings"

// Kind is a Pix beneficiary key type as the payment provider expects it.
type Kind string

const (
	KindEmail  Kind = "EMAIL"
	KindCPF    Kind = "CPF"
	KindCNPJ   Kind = "CNPJ"
	KindPhone  Kind = "PHONE"
	KindRandom Kind = "RANDOM"
)

// Valid reports whether k is one of the known key kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindEmail, KindCPF, KindCNPJ, KindPhone, KindRandom:
		return true
	}
	return false
}

// Classify derives the key kind from the key itself. It is only consulted
// when the seller did not supply an explicit kind; an explicit kind always
// wins. Rules are evaluated in order: '@' means email, exactly 11 digits is
// a CPF, exactly 14 a CNPJ, a leading '+' or 12-14 digits is a phone number,
// anything else is a random key.
func Classify(key string) Kind {
	key = strings.TrimSpace(key)
	if strings.Contains(key, "@") {
		return KindEmail
	}

	digits := 0
	for _, r := range key {
		if r >= '0' && r <= '9' {
			digits++
		}
	}

	switch {
	case digits == 11:
		return KindCPF
	case digits == 14:
		return KindCNPJ
	case strings.HasPrefix(key, "+"), digits > 11 && digits < 14:
		return KindPhone
	}
	return KindRandom
}
