package caller

import "strings"

var digitWords = [10]string{"o", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

// NormalizePhone reduces a phone number to its digits and drops a leading
// country code 1 from 11-digit numbers. "+1 (406) 555-1234" and "4065551234"
// share the key "4065551234".
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// PhoneForVoice spells a phone number for text-to-speech, grouped as area
// code, exchange and line: "four o six, five five five, one two three four".
// Numbers that are not 10 digits after normalization are returned unchanged.
func PhoneForVoice(phone string) string {
	if strings.TrimSpace(phone) == "" {
		return "your number"
	}

	key := NormalizePhone(phone)
	if len(key) != 10 {
		return phone
	}

	groups := []string{key[:3], key[3:6], key[6:]}
	spoken := make([]string, 0, len(groups))
	for _, g := range groups {
		words := make([]string, 0, len(g))
		for _, r := range g {
			words = append(words, digitWords[r-'0'])
		}
		spoken = append(spoken, strings.Join(words, " "))
	}
	return strings.Join(spoken, ", ")
}

// FirstName returns the first whitespace-separated token of a name.
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
