package store

import "fmt"

// Key builders for the fast store. Centralized so every component agrees
// on the same namespace.

func SessionKey(code string) string {
	return fmt.Sprintf("session:%s", code)
}

func QuizCacheKey(code string) string {
	return fmt.Sprintf("session:%s:quiz", code)
}

func ParticipantIndexKey(code, user string) string {
	return fmt.Sprintf("session:%s:index:%s", code, user)
}

func LockSessionParticipants(code string) string {
	return fmt.Sprintf("lock:session:%s:participants", code)
}

func LockAnswer(code, user string) string {
	return fmt.Sprintf("lock:answer:%s:%s", code, user)
}

func LockParticipants(code string) string {
	return fmt.Sprintf("lock:participants:%s", code)
}

func LockCompletionCheck(code string) string {
	return fmt.Sprintf("completion_check:%s", code)
}

func RateLimitAnswer(code, user string) string {
	return fmt.Sprintf("rate:answer:%s:%s", code, user)
}

func CompletedFlag(code, user string) string {
	return fmt.Sprintf("completed:%s:%s", code, user)
}

func UserActiveSession(user string) string {
	return fmt.Sprintf("user_active_session:%s", user)
}
