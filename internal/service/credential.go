package service

// SecurityQuestions are the questions offered at registration.
var SecurityQuestions = []string{
	"Which elementary school did you attend?",
	"What is your favourite movie or book?",
	"What is the name of your best friend?",
}

// SecondaryCredentialVerifier checks the security question and answer used
// for password recovery.
type SecondaryCredentialVerifier interface {
	Verify(storedQuestion, storedAnswer, question, answer string) bool
}

// PlaintextSecurityAnswer compares question and answer exactly, case included.
// Answers are stored as entered.
type PlaintextSecurityAnswer struct{}

func (PlaintextSecurityAnswer) Verify(storedQuestion, storedAnswer, question, answer string) bool {
	if storedQuestion == "" || storedAnswer == "" {
		return false
	}
	return storedQuestion == question && storedAnswer == answer
}
