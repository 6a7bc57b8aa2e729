package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ParticipantLoginKey returns the cache key guarding a participant's single-device login.
func (r *CacheKeyStruct) ParticipantLoginKey(participantID int64) string {
	return fmt.Sprintf("login:%d", participantID)
}

// SessionAnswersKey returns the cache key for a session's autosaved answer hash.
// Hash fields are question IDs, values are JSON-encoded answer state.
func (r *CacheKeyStruct) SessionAnswersKey(sessionID int64) string {
	return fmt.Sprintf("session:%d:answers", sessionID)
}

var CacheKey = NewCacheKeyStruct()
