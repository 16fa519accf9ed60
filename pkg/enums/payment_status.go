package enums

import "strings"

// PaymentStatus is reported by the payment system. Only success finalizes
// reservations; every other value is informational.
type PaymentStatus string

const PaymentStatusSuccess PaymentStatus = "Success"

func (s PaymentStatus) IsSuccess() bool {
	return strings.EqualFold(strings.TrimSpace(string(s)), string(PaymentStatusSuccess))
}
